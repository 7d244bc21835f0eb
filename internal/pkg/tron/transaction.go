package tron

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"
)

// protocol.Transaction.raw / Contract / TransferContract field numbers
const (
	rawContractField    protowire.Number = 11
	contractTypeField   protowire.Number = 1
	contractParamField  protowire.Number = 2
	anyTypeUrlField     protowire.Number = 1
	anyValueField       protowire.Number = 2
	transferOwnerField  protowire.Number = 1
	transferToField     protowire.Number = 2
	transferAmountField protowire.Number = 3
)

const (
	transferContractType  = 1
	transferContractProto = "protocol.TransferContract"
)

var ErrMalformedTransaction = errors.New("malformed tron transaction")

// Transfer is the single TransferContract carried by raw_data, plus the txID
// recomputed locally as sha256(raw_data).
type Transfer struct {
	TxID         []byte
	OwnerAddress []byte
	ToAddress    []byte
	Amount       int64
}

// DecodeTransfer parses raw_data_hex as built by /wallet/createtransaction.
// Anything other than exactly one TransferContract is rejected.
func DecodeTransfer(rawDataHex string) (*Transfer, error) {
	raw, err := hex.DecodeString(rawDataHex)
	if err != nil || len(raw) == 0 {
		return nil, fmt.Errorf("%w: raw_data_hex is not hex", ErrMalformedTransaction)
	}
	fields, err := parseFields(raw)
	if err != nil {
		return nil, err
	}

	var contracts [][]byte
	for _, f := range fields {
		if f.num == rawContractField {
			contracts = append(contracts, f.bytes)
		}
	}
	if len(contracts) != 1 {
		return nil, fmt.Errorf("%w: %d contracts", ErrMalformedTransaction, len(contracts))
	}

	contract, err := parseFields(contracts[0])
	if err != nil {
		return nil, err
	}
	var (
		contractType uint64
		param        []byte
	)
	for _, f := range contract {
		switch f.num {
		case contractTypeField:
			contractType = f.varint
		case contractParamField:
			param = f.bytes
		}
	}
	if contractType != transferContractType {
		return nil, fmt.Errorf("%w: contract type %d is not a transfer", ErrMalformedTransaction, contractType)
	}

	anyFields, err := parseFields(param)
	if err != nil {
		return nil, err
	}
	var (
		typeUrl string
		value   []byte
	)
	for _, f := range anyFields {
		switch f.num {
		case anyTypeUrlField:
			typeUrl = string(f.bytes)
		case anyValueField:
			value = f.bytes
		}
	}
	if !strings.HasSuffix(typeUrl, "/"+transferContractProto) {
		return nil, fmt.Errorf("%w: parameter type %q", ErrMalformedTransaction, typeUrl)
	}

	transferFields, err := parseFields(value)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(raw)
	t := &Transfer{TxID: sum[:]}
	for _, f := range transferFields {
		switch f.num {
		case transferOwnerField:
			t.OwnerAddress = f.bytes
		case transferToField:
			t.ToAddress = f.bytes
		case transferAmountField:
			t.Amount = int64(f.varint)
		}
	}
	return t, nil
}

type field struct {
	num    protowire.Number
	typ    protowire.Type
	bytes  []byte
	varint uint64
}

func parseFields(b []byte) ([]field, error) {
	var out []field
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformedTransaction, protowire.ParseError(n))
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.varint, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformedTransaction, protowire.ParseError(n))
		}
		b = b[n:]
		out = append(out, f)
	}
	return out, nil
}
