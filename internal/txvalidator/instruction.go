package txvalidator

import (
	"encoding/binary"
	"encoding/json"

	"custodia/pkg/config"
)

// InstructionAccount is one account referenced by an instruction, with the
// roles the ledger assigns it.
type InstructionAccount struct {
	Pubkey     string `json:"pubkey"`
	IsSigner   bool   `json:"is_signer"`
	IsWritable bool   `json:"is_writable"`
}

// RawInstruction is an instruction as the ledger library exposes it: the
// program it invokes, the accounts it touches and opaque data bytes.
type RawInstruction struct {
	ProgramID string               `json:"program_id"`
	Accounts  []InstructionAccount `json:"accounts"`
	Data      []byte               `json:"data"`
}

// UnsignedTransaction is the pre-signing view of a constructed transaction.
type UnsignedTransaction struct {
	FeePayer        string           `json:"fee_payer"`
	RequiredSigners []string         `json:"required_signers"`
	Instructions    []RawInstruction `json:"instructions"`
}

// ParseTransaction decodes a serialized unsigned transaction. Any decode
// failure means the payload cannot be trusted and validation fails closed.
func ParseTransaction(payload []byte) (*UnsignedTransaction, error) {
	if len(payload) == 0 {
		return nil, errEmptyPayload
	}
	var tx UnsignedTransaction
	if err := json.Unmarshal(payload, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// Instruction discriminators on the wire. System and token transfers carry a
// little-endian discriminator followed by a u64 amount in base units.
const (
	systemTransferIndex = 2
	tokenTransferIndex  = 3

	systemTransferDataLen = 12 // u32 index + u64 lamports
	tokenTransferDataLen  = 9  // u8 index + u64 amount

	// SPL token transfer account layout: source, destination, authority.
	tokenAuthorityIndex      = 2
	tokenTransferMinAccounts = tokenAuthorityIndex + 1
)

// instructionKind tags the decoded variant of a raw instruction. Anything the
// decoder cannot place is kindUnknown and rejected by construction.
type instructionKind int

const (
	kindUnknown instructionKind = iota
	kindSystemTransfer
	kindSystemOther
	kindTokenTransfer
	kindTokenOther
	kindAllowedOther
)

// decodedInstruction is the tagged-variant view the validator checks against
// policy. Source/Destination/Authority are only set for transfer kinds.
type decodedInstruction struct {
	kind        instructionKind
	programID   string
	accounts    []InstructionAccount
	source      string
	destination string
	authority   string
	amount      uint64
	malformed   bool
}

// classify resolves a raw instruction against the allowed program set and
// decodes transfer variants. An unlisted program yields kindUnknown.
func classify(ix RawInstruction, policy config.PolicyConfig, allowed map[string]bool) decodedInstruction {
	dec := decodedInstruction{
		kind:      kindUnknown,
		programID: ix.ProgramID,
		accounts:  ix.Accounts,
	}

	if !allowed[ix.ProgramID] {
		return dec
	}

	switch ix.ProgramID {
	case policy.SystemProgramID:
		dec.kind = kindSystemOther
		if len(ix.Data) >= 4 && binary.LittleEndian.Uint32(ix.Data[:4]) == systemTransferIndex {
			dec.kind = kindSystemTransfer
			if len(ix.Data) < systemTransferDataLen || len(ix.Accounts) < 2 {
				dec.malformed = true
				return dec
			}
			dec.amount = binary.LittleEndian.Uint64(ix.Data[4:systemTransferDataLen])
			dec.source = ix.Accounts[0].Pubkey
			dec.destination = ix.Accounts[1].Pubkey
		}
	case policy.TokenProgramID:
		dec.kind = kindTokenOther
		if len(ix.Data) >= 1 && ix.Data[0] == tokenTransferIndex {
			dec.kind = kindTokenTransfer
			if len(ix.Data) < tokenTransferDataLen {
				dec.malformed = true
				return dec
			}
			dec.amount = binary.LittleEndian.Uint64(ix.Data[1:tokenTransferDataLen])
			if len(ix.Accounts) >= 1 {
				dec.source = ix.Accounts[0].Pubkey
			}
			if len(ix.Accounts) >= 2 {
				dec.destination = ix.Accounts[1].Pubkey
			}
			if len(ix.Accounts) > tokenAuthorityIndex {
				dec.authority = ix.Accounts[tokenAuthorityIndex].Pubkey
			}
		}
	default:
		dec.kind = kindAllowedOther
	}

	return dec
}
