/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package snmp

import (
	"net"

	"github.com/pkg/errors"

	"github.com/mpmcore/mpmcore/ber"
)

// SNMP protocol versions, encoded on the wire as the PDU's leading INTEGER.
const (
	VersionV1  = 0
	VersionV2c = 1
)

// PDU command kinds, matching the ASN.1 context-specific tag for each.
const (
	CmdGetRequest     = ber.TagGetRequest
	CmdGetNextRequest = ber.TagGetNextRequest
	CmdGetResponse    = ber.TagGetResponse
	CmdSetRequest     = ber.TagSetRequest
	CmdTrapV1         = ber.TagTrapV1
	CmdGetBulkRequest = ber.TagGetBulkRequest
	CmdInformRequest  = ber.TagInformRequest
	CmdTrapV2         = ber.TagTrapV2
)

// standardTrapPrefix is the enterprise OID prefix reserved for the six
// standard SNMPv2 traps (coldStart..authenticationFailure), arc 9 being the
// trap-type selector (generic-type + 1).
var standardTrapPrefix = ObjectID{1, 3, 6, 1, 6, 3, 1, 1, 5}

// PDU is a parsed or about-to-be-encoded SNMP v1/v2c protocol data unit.
// Trap-specific fields are populated only for CmdTrapV1/CmdTrapV2 PDUs, and
// always carry the normalized (generic-type, specific-type, enterprise)
// triple regardless of whether the PDU came in as a v1 or v2 trap.
type PDU struct {
	Version     int
	Community   string
	Command     byte
	RequestID   int32
	ErrorStatus int32
	ErrorIndex  int32
	Variables   []Variable

	Enterprise   ObjectID
	AgentAddr    net.IP
	GenericType  int32
	SpecificType int32
	Timestamp    uint32
}

// ErrParse is returned for any malformed PDU.
var ErrParse = errors.New("snmp: PDU parse error")

// Parse decodes a full SNMP datagram: outer SEQUENCE, version, community,
// and exactly one PDU-tagged inner structure.
func Parse(data []byte) (*PDU, error) {
	tag, _, content, _, err := ber.DecodeIdentifier(data)
	if err != nil {
		return nil, errors.Wrap(err, "snmp: outer SEQUENCE")
	}
	if tag != ber.TagSequence {
		return nil, errors.Wrap(ErrParse, "missing outer SEQUENCE")
	}

	verTag, _, verContent, verHdr, err := ber.DecodeIdentifier(content)
	if err != nil || verTag != ber.TagInteger {
		return nil, errors.Wrap(ErrParse, "missing version INTEGER")
	}
	ver, err := ber.DecodeInteger(verContent)
	if err != nil {
		return nil, err
	}
	pos := verHdr + len(verContent)

	commTag, _, commContent, commHdr, err := ber.DecodeIdentifier(content[pos:])
	if err != nil || commTag != ber.TagOctetString {
		return nil, errors.Wrap(ErrParse, "missing community OCTET STRING")
	}
	pos += commHdr + len(commContent)

	pduTag, _, pduContent, _, err := ber.DecodeIdentifier(content[pos:])
	if err != nil {
		return nil, errors.Wrap(err, "snmp: PDU header")
	}

	pdu := &PDU{Version: int(ver), Community: string(commContent), Command: pduTag}
	switch pduTag {
	case ber.TagGetRequest, ber.TagGetNextRequest, ber.TagSetRequest, ber.TagGetResponse, ber.TagGetBulkRequest, ber.TagInformRequest:
		if err := parseGenericPDU(pdu, pduContent); err != nil {
			return nil, err
		}
	case ber.TagTrapV1:
		if err := parseTrapV1(pdu, pduContent); err != nil {
			return nil, err
		}
	case ber.TagTrapV2:
		if err := parseGenericPDU(pdu, pduContent); err != nil {
			return nil, err
		}
		normalizeTrapV2(pdu)
	default:
		return nil, errors.Wrapf(ErrParse, "unknown PDU tag 0x%02X", pduTag)
	}
	return pdu, nil
}

func parseGenericPDU(pdu *PDU, content []byte) error {
	reqTag, _, reqContent, reqHdr, err := ber.DecodeIdentifier(content)
	if err != nil || reqTag != ber.TagInteger {
		return errors.Wrap(ErrParse, "missing request-id INTEGER")
	}
	reqID, err := ber.DecodeInteger(reqContent)
	if err != nil {
		return err
	}
	pdu.RequestID = int32(reqID)
	pos := reqHdr + len(reqContent)

	errTag, _, errContent, errHdr, err := ber.DecodeIdentifier(content[pos:])
	if err != nil || errTag != ber.TagInteger {
		return errors.Wrap(ErrParse, "missing error-status INTEGER")
	}
	errStatus, err := ber.DecodeInteger(errContent)
	if err != nil {
		return err
	}
	pdu.ErrorStatus = int32(errStatus)
	pos += errHdr + len(errContent)

	idxTag, _, idxContent, idxHdr, err := ber.DecodeIdentifier(content[pos:])
	if err != nil || idxTag != ber.TagInteger {
		return errors.Wrap(ErrParse, "missing error-index INTEGER")
	}
	errIndex, err := ber.DecodeInteger(idxContent)
	if err != nil {
		return err
	}
	pdu.ErrorIndex = int32(errIndex)
	pos += idxHdr + len(idxContent)

	vbTag, _, vbContent, _, err := ber.DecodeIdentifier(content[pos:])
	if err != nil || vbTag != ber.TagSequence {
		return errors.Wrap(ErrParse, "missing varbind-list SEQUENCE")
	}
	return parseVarbindList(pdu, vbContent)
}

func parseVarbindList(pdu *PDU, content []byte) error {
	pos := 0
	for pos < len(content) {
		v, n, err := ParseVariable(content[pos:])
		if err != nil {
			return err
		}
		pdu.Variables = append(pdu.Variables, v)
		pos += n
	}
	return nil
}

func parseTrapV1(pdu *PDU, content []byte) error {
	entTag, _, entContent, entHdr, err := ber.DecodeIdentifier(content)
	if err != nil || entTag != ber.TagObjectID {
		return errors.Wrap(ErrParse, "missing enterprise OBJECT IDENTIFIER")
	}
	entArcs, err := ber.DecodeObjectID(entContent)
	if err != nil {
		return err
	}
	enterprise := ObjectID(entArcs)
	pos := entHdr + len(entContent)

	addrTag, _, addrContent, addrHdr, err := ber.DecodeIdentifier(content[pos:])
	if err != nil || addrTag != ber.TagIPAddress || len(addrContent) != 4 {
		return errors.Wrap(ErrParse, "missing agent-addr IpAddress")
	}
	pdu.AgentAddr = net.IPv4(addrContent[0], addrContent[1], addrContent[2], addrContent[3])
	pos += addrHdr + len(addrContent)

	genTag, _, genContent, genHdr, err := ber.DecodeIdentifier(content[pos:])
	if err != nil || genTag != ber.TagInteger {
		return errors.Wrap(ErrParse, "missing generic-type INTEGER")
	}
	generic, err := ber.DecodeInteger(genContent)
	if err != nil {
		return err
	}
	pos += genHdr + len(genContent)

	specTag, _, specContent, specHdr, err := ber.DecodeIdentifier(content[pos:])
	if err != nil || specTag != ber.TagInteger {
		return errors.Wrap(ErrParse, "missing specific-type INTEGER")
	}
	specific, err := ber.DecodeInteger(specContent)
	if err != nil {
		return err
	}
	pos += specHdr + len(specContent)

	tsTag, _, tsContent, tsHdr, err := ber.DecodeIdentifier(content[pos:])
	if err != nil || tsTag != ber.TagTimeTicks {
		return errors.Wrap(ErrParse, "missing timestamp TimeTicks")
	}
	ts, err := ber.DecodeInteger(tsContent)
	if err != nil {
		return err
	}
	pdu.Timestamp = ts
	pos += tsHdr + len(tsContent)

	vbTag, _, vbContent, _, err := ber.DecodeIdentifier(content[pos:])
	if err != nil || vbTag != ber.TagSequence {
		return errors.Wrap(ErrParse, "missing varbind-list SEQUENCE")
	}
	if err := parseVarbindList(pdu, vbContent); err != nil {
		return err
	}

	pdu.GenericType = int32(generic)
	pdu.SpecificType = int32(specific)
	if generic <= 5 {
		pdu.Enterprise = standardTrapPrefix.Append(generic + 1)
	} else {
		pdu.Enterprise = enterprise.Append(0, specific)
	}
	return nil
}

// normalizeTrapV2 derives (Enterprise, GenericType, SpecificType) from a
// TrapV2 PDU's varbinds by the SNMPv2 convention that varbind[1] carries the
// snmpTrapOID binding.
func normalizeTrapV2(pdu *PDU) {
	if len(pdu.Variables) < 2 {
		return
	}
	trapOID, err := pdu.Variables[1].AsObjectID()
	if err != nil {
		return
	}
	if len(trapOID) == 10 && trapOID.HasPrefix(standardTrapPrefix) {
		last := trapOID[9]
		pdu.GenericType = int32(last) - 1
		pdu.SpecificType = 0
		pdu.Enterprise = standardTrapPrefix.Clone()
	} else {
		pdu.GenericType = 6
		if len(trapOID) > 0 {
			pdu.SpecificType = int32(trapOID[len(trapOID)-1])
		}
		pdu.Enterprise = trapOID
	}
}

// Encode serializes the PDU back into a full SNMP datagram, using Command
// as the PDU tag.
func (pdu *PDU) Encode() ([]byte, error) {
	var pduBody []byte
	var err error
	switch pdu.Command {
	case ber.TagTrapV1:
		pduBody, err = encodeTrapV1(pdu)
	default:
		pduBody, err = encodeGenericPDU(pdu)
	}
	if err != nil {
		return nil, err
	}

	pduBuf := make([]byte, len(pduBody)+6)
	pduLen, err := ber.Encode(pduBuf, pdu.Command, pduBody)
	if err != nil {
		return nil, err
	}

	verBytes := ber.EncodeInteger(int32(pdu.Version))
	verBuf := make([]byte, len(verBytes)+2)
	verLen, err := ber.Encode(verBuf, ber.TagInteger, verBytes)
	if err != nil {
		return nil, err
	}

	commBuf := make([]byte, len(pdu.Community)+6)
	commLen, err := ber.Encode(commBuf, ber.TagOctetString, []byte(pdu.Community))
	if err != nil {
		return nil, err
	}

	inner := append(append(append([]byte(nil), verBuf[:verLen]...), commBuf[:commLen]...), pduBuf[:pduLen]...)
	out := make([]byte, len(inner)+6)
	n, err := ber.Encode(out, ber.TagSequence, inner)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

func encodeVarbindList(vars []Variable) ([]byte, error) {
	var body []byte
	for _, v := range vars {
		enc, err := v.Encode()
		if err != nil {
			return nil, err
		}
		body = append(body, enc...)
	}
	buf := make([]byte, len(body)+6)
	n, err := ber.Encode(buf, ber.TagSequence, body)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func encodeInt(v int32) ([]byte, error) {
	content := ber.EncodeInteger(v)
	buf := make([]byte, len(content)+2)
	n, err := ber.Encode(buf, ber.TagInteger, content)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func encodeGenericPDU(pdu *PDU) ([]byte, error) {
	reqBuf, err := encodeInt(pdu.RequestID)
	if err != nil {
		return nil, err
	}
	errBuf, err := encodeInt(pdu.ErrorStatus)
	if err != nil {
		return nil, err
	}
	idxBuf, err := encodeInt(pdu.ErrorIndex)
	if err != nil {
		return nil, err
	}
	vbBuf, err := encodeVarbindList(pdu.Variables)
	if err != nil {
		return nil, err
	}
	out := append(append(append([]byte(nil), reqBuf...), errBuf...), idxBuf...)
	return append(out, vbBuf...), nil
}

func encodeTrapV1(pdu *PDU) ([]byte, error) {
	entContent := ber.EncodeObjectID(pdu.Enterprise)
	entBuf := make([]byte, len(entContent)+6)
	entLen, err := ber.Encode(entBuf, ber.TagObjectID, entContent)
	if err != nil {
		return nil, err
	}

	v4 := pdu.AgentAddr.To4()
	if v4 == nil {
		v4 = net.IPv4zero.To4()
	}
	addrBuf := make([]byte, len(v4)+2)
	addrLen, err := ber.Encode(addrBuf, ber.TagIPAddress, v4)
	if err != nil {
		return nil, err
	}

	genBuf, err := encodeTagged(ber.TagInteger, ber.EncodeInteger(pdu.GenericType))
	if err != nil {
		return nil, err
	}
	specBuf, err := encodeTagged(ber.TagInteger, ber.EncodeInteger(pdu.SpecificType))
	if err != nil {
		return nil, err
	}
	tsBuf, err := encodeTagged(ber.TagTimeTicks, ber.EncodeUnsigned(pdu.Timestamp))
	if err != nil {
		return nil, err
	}
	vbBuf, err := encodeVarbindList(pdu.Variables)
	if err != nil {
		return nil, err
	}

	out := append([]byte(nil), entBuf[:entLen]...)
	out = append(out, addrBuf[:addrLen]...)
	out = append(out, genBuf...)
	out = append(out, specBuf...)
	out = append(out, tsBuf...)
	out = append(out, vbBuf...)
	return out, nil
}

func encodeTagged(tag byte, content []byte) ([]byte, error) {
	buf := make([]byte, len(content)+6)
	n, err := ber.Encode(buf, tag, content)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}
