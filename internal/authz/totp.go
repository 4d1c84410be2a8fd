// Package authz provides the step-up authorization check demanded for
// high-value transfers.
package authz

import (
	"context"

	"github.com/pquerna/otp/totp"

	"custodia/internal/domain"
	"custodia/pkg/errors"
	"custodia/pkg/logger"
)

// StepUpVerifier confirms a second authentication factor before a flagged
// transfer may proceed.
type StepUpVerifier interface {
	Verify(ctx context.Context, customer *domain.Customer, code string) error
}

// TOTPVerifier validates time-based one-time passcodes against the
// customer's enrolled secret.
type TOTPVerifier struct {
	issuer string
	logger logger.Logger
}

func NewTOTPVerifier(issuer string, log logger.Logger) *TOTPVerifier {
	return &TOTPVerifier{issuer: issuer, logger: log}
}

// Enroll generates a fresh TOTP secret and provisioning URL for a customer.
// The caller persists the secret only after the customer proves possession
// with a valid first code.
func (v *TOTPVerifier) Enroll(accountName string) (secret, url string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      v.issuer,
		AccountName: accountName,
		SecretSize:  32,
	})
	if err != nil {
		return "", "", errors.Wrap(err, "failed to generate TOTP secret")
	}
	return key.Secret(), key.URL(), nil
}

// Verify checks the submitted code against the customer's secret. A customer
// without an enrolled secret cannot pass step-up: high-value transfers stay
// blocked until enrollment completes.
func (v *TOTPVerifier) Verify(ctx context.Context, customer *domain.Customer, code string) error {
	if customer.TOTPSecret == nil || *customer.TOTPSecret == "" {
		v.logger.Warn("step-up requested for customer without enrolled factor", map[string]interface{}{
			"customer_id": customer.ID,
		})
		return errors.ErrAdditionalAuthInvalid
	}
	if code == "" || !totp.Validate(code, *customer.TOTPSecret) {
		v.logger.Warn("step-up verification failed", map[string]interface{}{
			"customer_id": customer.ID,
		})
		return errors.ErrAdditionalAuthInvalid
	}
	return nil
}
