// Package txvalidator inspects unsigned ledger transactions before they are
// handed to the signer. A transaction that fails any check here is never
// signed on the customer's behalf.
package txvalidator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"custodia/pkg/config"
	"custodia/pkg/logger"
)

var errEmptyPayload = errors.New("empty payload")

// ValidationResult is the verdict on one unsigned transaction. Errors
// accumulate so a single call reports every problem found.
type ValidationResult struct {
	IsValid                bool     `json:"is_valid"`
	Errors                 []string `json:"errors"`
	Warnings               []string `json:"warnings"`
	RequiresAdditionalAuth bool     `json:"requires_additional_auth"`
}

// BalanceReader resolves the spendable balance of an account in base units.
type BalanceReader interface {
	Balance(ctx context.Context, pubkey string) (uint64, error)
}

type Validator struct {
	policy   config.PolicyConfig
	allowed  map[string]bool
	balances BalanceReader
	logger   logger.Logger
}

func New(policy config.PolicyConfig, balances BalanceReader, log logger.Logger) *Validator {
	allowed := make(map[string]bool, len(policy.AllowedPrograms))
	for _, p := range policy.AllowedPrograms {
		allowed[p] = true
	}

	return &Validator{
		policy:   policy,
		allowed:  allowed,
		balances: balances,
		logger:   log,
	}
}

// Validate checks a serialized unsigned transaction against the instruction
// policy. It never panics past its boundary: any internal failure converts to
// an invalid result, and the audit log entry is written on every path.
func (v *Validator) Validate(ctx context.Context, payload []byte, expectedSigner string, customerID uuid.UUID) (result *ValidationResult) {
	result = &ValidationResult{}

	defer func() {
		if r := recover(); r != nil {
			result = &ValidationResult{
				IsValid: false,
				Errors:  []string{"validation system error"},
			}
		}
		result.IsValid = len(result.Errors) == 0
		v.logger.Info("transaction validation completed", map[string]interface{}{
			"customer_id":   customerID,
			"valid":         result.IsValid,
			"error_count":   len(result.Errors),
			"warning_count": len(result.Warnings),
			"requires_2fa":  result.RequiresAdditionalAuth,
		})
	}()

	tx, err := ParseTransaction(payload)
	if err != nil {
		result.Errors = append(result.Errors, "invalid format")
		return result
	}

	if !v.hasRequiredSigner(tx, expectedSigner) {
		result.Errors = append(result.Errors, "signer mismatch")
	}

	if len(tx.Instructions) > v.policy.MaxInstructions {
		result.Errors = append(result.Errors,
			fmt.Sprintf("too many instructions: %d exceeds limit of %d", len(tx.Instructions), v.policy.MaxInstructions))
	}

	for i, raw := range tx.Instructions {
		dec := classify(raw, v.policy, v.allowed)

		if dec.kind == kindUnknown {
			result.Errors = append(result.Errors, fmt.Sprintf("unauthorized program: %s", raw.ProgramID))
			continue
		}
		if dec.malformed {
			result.Errors = append(result.Errors, fmt.Sprintf("instruction %d: invalid format", i))
			continue
		}

		switch dec.kind {
		case kindSystemTransfer:
			v.checkNativeTransfer(dec, expectedSigner, result)
		case kindTokenTransfer:
			v.checkTokenTransfer(dec, expectedSigner, result)
		}
	}

	v.checkFeeBuffer(ctx, tx, result)

	return result
}

func (v *Validator) hasRequiredSigner(tx *UnsignedTransaction, expectedSigner string) bool {
	for _, s := range tx.RequiredSigners {
		if s == expectedSigner {
			return true
		}
	}
	return false
}

// checkNativeTransfer requires the debit account to be exactly the expected
// signer, so a crafted instruction cannot drain a different account under the
// customer's signature.
func (v *Validator) checkNativeTransfer(dec decodedInstruction, expectedSigner string, result *ValidationResult) {
	if dec.source != expectedSigner {
		result.Errors = append(result.Errors,
			fmt.Sprintf("signer mismatch: transfer source %s is not the expected signer", dec.source))
	}

	if dec.amount >= v.policy.HighValueThreshold {
		result.RequiresAdditionalAuth = true
	}
}

// checkTokenTransfer treats all token movement as sensitive. A zero token
// threshold keeps the conservative default of demanding a second factor for
// every token transfer.
func (v *Validator) checkTokenTransfer(dec decodedInstruction, expectedSigner string, result *ValidationResult) {
	minAccounts := v.policy.MinTokenTransferAccounts
	if minAccounts < tokenTransferMinAccounts {
		minAccounts = tokenTransferMinAccounts
	}
	if len(dec.accounts) < minAccounts {
		result.Errors = append(result.Errors,
			fmt.Sprintf("token transfer references %d accounts, expected at least %d",
				len(dec.accounts), minAccounts))
		return
	}

	if dec.authority != expectedSigner {
		result.Errors = append(result.Errors,
			fmt.Sprintf("signer mismatch: token transfer authority %s is not the expected signer", dec.authority))
	} else if !dec.accounts[tokenAuthorityIndex].IsSigner {
		result.Errors = append(result.Errors, "token transfer authority is not marked as signer")
	}

	if v.policy.TokenHighValueThreshold == 0 || dec.amount >= v.policy.TokenHighValueThreshold {
		result.RequiresAdditionalAuth = true
	}
}

// checkFeeBuffer warns, without failing the transaction, when the fee payer
// may not cover network fees. A balance lookup failure also only warns.
func (v *Validator) checkFeeBuffer(ctx context.Context, tx *UnsignedTransaction, result *ValidationResult) {
	if v.balances == nil || tx.FeePayer == "" {
		return
	}

	balance, err := v.balances.Balance(ctx, tx.FeePayer)
	if err != nil {
		result.Warnings = append(result.Warnings, "unable to verify fee payer balance")
		return
	}

	if balance < v.policy.FeeBuffer {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("fee payer balance %d below fee buffer %d", balance, v.policy.FeeBuffer))
	}
}
