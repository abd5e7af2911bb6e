package services

import (
	"context"
	"regexp"

	"github.com/AllanGomesCorrea/QRmenu-sub001/utils"
)

const PhoneRegexStr = `^(\+?[1-9]\d{7,14}|0\d{9,14})$`

var phoneRegex = regexp.MustCompile(PhoneRegexStr)

// CodeDispatcher mengirim kode verifikasi keluar (SMS, WhatsApp, log). Fire-and-forget.
type CodeDispatcher interface {
	SendCode(ctx context.Context, phone, code string) error
}

// LogDispatcher -> menulis kode ke log, untuk development tanpa provider SMS
type LogDispatcher struct{}

func (LogDispatcher) SendCode(ctx context.Context, phone, code string) error {
	utils.InfoLogger.WithField("phone", maskPhone(phone)).Infof("Verification code: %s", code)
	return nil
}

// ValidatePhoneNumber -> nomor telepon harus format lokal (0...) atau internasional (+...)
func ValidatePhoneNumber(phone string) error {
	if phone == "" {
		return validation("phone number is required")
	}
	if !phoneRegex.MatchString(phone) {
		return validation("phone number format is invalid")
	}
	return nil
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return "****" + phone[len(phone)-4:]
}
