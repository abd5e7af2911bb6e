package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/AllanGomesCorrea/QRmenu-sub001/models"
	"github.com/AllanGomesCorrea/QRmenu-sub001/utils"
)

const codeDigits = 6

// VerificationService -> kode OTP 6 digit per (phone, meja)
type VerificationService struct {
	db         *gorm.DB
	sessions   *SessionService
	dispatcher CodeDispatcher
	opts       Options
	locks      *keyedMutex

	// generateCode bisa diganti di test
	generateCode func() (string, error)
}

func NewVerificationService(db *gorm.DB, sessions *SessionService, dispatcher CodeDispatcher, opts Options) *VerificationService {
	if dispatcher == nil {
		dispatcher = LogDispatcher{}
	}
	return &VerificationService{
		db:           db,
		sessions:     sessions,
		dispatcher:   dispatcher,
		opts:         opts.withDefaults(),
		locks:        newKeyedMutex(),
		generateCode: randomCode,
	}
}

func randomCode() (string, error) {
	max := big.NewInt(int64(math.Pow10(codeDigits)))
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}

// RequestCode -> buat (atau ganti) kode untuk phone di meja ini lalu kirim lewat dispatcher.
// Permintaan ulang sebelum cooldown habis => RateLimited dengan sisa detik.
func (v *VerificationService) RequestCode(ctx context.Context, slug, qrCode, phone string) (*models.VerificationCode, error) {
	if err := ValidatePhoneNumber(phone); err != nil {
		return nil, err
	}
	db := v.db.WithContext(ctx)
	if _, _, err := resolveTable(db, slug, qrCode); err != nil {
		return nil, err
	}

	unlock := v.locks.Lock(phone + "|" + qrCode)
	defer unlock()

	now := v.opts.Now()
	var existing models.VerificationCode
	err := db.Where("phone = ? AND table_qr_code = ?", phone, qrCode).First(&existing).Error
	switch {
	case err == nil:
		if elapsed := now.Sub(existing.CreatedAt); elapsed < v.opts.CodeCooldown {
			remaining := int(math.Ceil((v.opts.CodeCooldown - elapsed).Seconds()))
			return nil, rateLimited(remaining)
		}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("failed to load verification code: %w", err)
	}

	code, err := v.generateCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate code: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash code: %w", err)
	}

	record := models.VerificationCode{
		Phone:       phone,
		TableQRCode: qrCode,
		CodeHash:    string(hash),
		Attempts:    0,
		CreatedAt:   now,
		ExpiresAt:   now.Add(v.opts.CodeTTL),
	}
	// satu kode aktif per (phone, meja): kode lama langsung diganti
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "phone"}, {Name: "table_qr_code"}},
		DoUpdates: clause.AssignmentColumns([]string{"code_hash", "attempts", "created_at", "expires_at"}),
	}).Create(&record).Error; err != nil {
		return nil, fmt.Errorf("failed to store verification code: %w", err)
	}

	if err := v.dispatcher.SendCode(ctx, phone, code); err != nil {
		// kode tetap tersimpan, customer bisa minta ulang setelah cooldown
		utils.ErrorLogger.WithFields(logrus.Fields{
			"phone": maskPhone(phone),
			"error": err.Error(),
		}).Error("Failed to dispatch verification code")
	}
	return &record, nil
}

// VerifyCode -> cocokkan kode. Sukses: kode dihapus dan session di-verify dalam satu transaksi.
func (v *VerificationService) VerifyCode(ctx context.Context, slug, qrCode, phone, code, fingerprint string) (*VerifiedSession, error) {
	if err := ValidatePhoneNumber(phone); err != nil {
		return nil, err
	}
	if len(code) != codeDigits {
		return nil, validation("code must be %d digits", codeDigits)
	}
	if fingerprint == "" {
		return nil, validation("device fingerprint is required")
	}

	unlock := v.locks.Lock(phone + "|" + qrCode)
	defer unlock()

	var (
		result  *VerifiedSession
		table   *models.Table
		flip    bool
		outcome error
	)
	now := v.opts.Now()
	err := v.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		table, _, err = resolveTable(tx, slug, qrCode)
		if err != nil {
			return err
		}

		var record models.VerificationCode
		if err := tx.Where("phone = ? AND table_qr_code = ?", phone, qrCode).First(&record).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCodeNotFound
			}
			return fmt.Errorf("failed to load verification code: %w", err)
		}

		if !now.Before(record.ExpiresAt) {
			if err := tx.Delete(&record).Error; err != nil {
				return fmt.Errorf("failed to delete verification code: %w", err)
			}
			// hapus kode expired tetap di-commit
			outcome = ErrCodeExpired
			return nil
		}

		if bcrypt.CompareHashAndPassword([]byte(record.CodeHash), []byte(code)) != nil {
			record.Attempts++
			if record.Attempts >= v.opts.MaxCodeAttempts {
				if err := tx.Delete(&record).Error; err != nil {
					return fmt.Errorf("failed to delete verification code: %w", err)
				}
			} else if err := tx.Model(&record).Update("attempts", record.Attempts).Error; err != nil {
				return fmt.Errorf("failed to update attempts: %w", err)
			}
			outcome = ErrCodeMismatch
			return nil
		}

		if err := tx.Delete(&record).Error; err != nil {
			return fmt.Errorf("failed to delete verification code: %w", err)
		}
		result, table, flip, err = v.sessions.verifyTx(tx, table.ID, fingerprint, phone)
		return err
	})
	if err != nil {
		return nil, err
	}
	if outcome != nil {
		return nil, outcome
	}
	if flip {
		v.sessions.emitTable(table)
	}
	return result, nil
}

// DeleteExpired -> dipanggil sweeper, kembalikan jumlah kode yang dihapus
func (v *VerificationService) DeleteExpired(ctx context.Context) (int64, error) {
	res := v.db.WithContext(ctx).Where("expires_at <= ?", v.opts.Now()).Delete(&models.VerificationCode{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete expired codes: %w", res.Error)
	}
	return res.RowsAffected, nil
}
