package store

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nileshdk/bolikhata/internal/engineerr"
)

// otpTTL is how long a deletion OTP stays valid.
const otpTTL = 10 * time.Minute

// OTPService issues and verifies the one-time codes gating customer data
// deletion. One pending code per customer; issuing again replaces it.
// Obtain via [Store.OTP].
type OTPService struct {
	pool *pgxpool.Pool
}

// Issue generates a 6-digit code for the customer with a 10-minute TTL and
// returns it for delivery.
func (s *OTPService) Issue(ctx context.Context, customerID string) (string, error) {
	code, err := randomCode()
	if err != nil {
		return "", fmt.Errorf("otp: generate code: %w", err)
	}
	const q = `
		INSERT INTO deletion_otps (customer_id, code, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (customer_id)
		DO UPDATE SET code = EXCLUDED.code, expires_at = EXCLUDED.expires_at, created_at = now()`
	if _, err := s.pool.Exec(ctx, q, customerID, code, time.Now().Add(otpTTL)); err != nil {
		return "", engineerr.Wrap(engineerr.KindDatabase, "", "store otp", err)
	}
	return code, nil
}

// Verify checks the code for the customer and consumes it on success.
// Expired or wrong codes fail with OTP_MISMATCH.
func (s *OTPService) Verify(ctx context.Context, customerID, code string) error {
	var (
		stored    string
		expiresAt time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT code, expires_at FROM deletion_otps WHERE customer_id = $1`,
		customerID).Scan(&stored, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return engineerr.New(engineerr.KindAuthentication, engineerr.CodeOTPMismatch,
			"no deletion code was requested for this customer")
	}
	if err != nil {
		return engineerr.Wrap(engineerr.KindDatabase, "", "fetch otp", err)
	}

	if time.Now().After(expiresAt) || stored != code {
		return engineerr.New(engineerr.KindAuthentication, engineerr.CodeOTPMismatch,
			"deletion code is wrong or expired")
	}

	if _, err := s.pool.Exec(ctx,
		`DELETE FROM deletion_otps WHERE customer_id = $1`, customerID); err != nil {
		return engineerr.Wrap(engineerr.KindDatabase, "", "consume otp", err)
	}
	return nil
}

// randomCode returns a uniformly random 6-digit string.
func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
