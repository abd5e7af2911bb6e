// Package notify meneruskan event penting (panggil waiter, minta bill, order baru) ke chat
// Telegram staff. Sink ini hanya pelengkap; dashboard realtime tetap sumber utama.
package notify

import (
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"github.com/AllanGomesCorrea/QRmenu-sub001/events"
	"github.com/AllanGomesCorrea/QRmenu-sub001/utils"
)

const queueSize = 100

// Sender -> bagian dari *tgbotapi.BotAPI yang dipakai sink
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSink -> services.Broadcaster yang mengirim alert ke satu chat staff
type TelegramSink struct {
	sender         Sender
	chatID         int64
	currencySymbol string

	mu     sync.RWMutex
	closed bool
	queue  chan tgbotapi.MessageConfig
	wg     sync.WaitGroup
}

// NewTelegramBot membuat bot API dari token dan membungkusnya menjadi sink
func NewTelegramBot(token string, chatID int64, currencySymbol string) (*TelegramSink, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	utils.InfoLogger.Infof("Telegram alerts enabled as @%s", api.Self.UserName)
	return NewTelegramSink(api, chatID, currencySymbol), nil
}

func NewTelegramSink(sender Sender, chatID int64, currencySymbol string) *TelegramSink {
	if currencySymbol == "" {
		currencySymbol = "Rp"
	}
	s := &TelegramSink{
		sender:         sender,
		chatID:         chatID,
		currencySymbol: currencySymbol,
		queue:          make(chan tgbotapi.MessageConfig, queueSize),
	}
	s.wg.Add(1)
	go s.worker()
	return s
}

func (s *TelegramSink) worker() {
	defer s.wg.Done()
	for msg := range s.queue {
		if _, err := s.sender.Send(msg); err != nil {
			utils.ErrorLogger.Errorf("Telegram alert failed: %v", err)
		}
	}
}

// Emit tidak pernah blocking: dipanggil service setelah commit. Setelah Close event dibuang.
func (s *TelegramSink) Emit(rooms []string, event string, data interface{}) {
	text, ok := s.format(event, data)
	if !ok {
		return
	}
	msg := tgbotapi.NewMessage(s.chatID, text)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- msg:
	default:
		utils.ErrorLogger.Errorf("Telegram alert queue full, dropping %s", event)
	}
}

// Close menunggu antrian terkirim. Aman dipanggil berulang.
func (s *TelegramSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *TelegramSink) format(event string, data interface{}) (string, bool) {
	switch p := data.(type) {
	case events.WaiterCalledPayload:
		var b strings.Builder
		fmt.Fprintf(&b, "🔔 Table %d is calling a waiter", p.TableNumber)
		if p.Customer != "" {
			fmt.Fprintf(&b, " (%s)", p.Customer)
		}
		if p.Reason != "" {
			fmt.Fprintf(&b, "\nReason: %s", p.Reason)
		}
		return b.String(), event == events.TableWaiterCalled

	case events.BillRequestedPayload:
		text := fmt.Sprintf("🧾 Table %d requested the bill", p.TableNumber)
		if p.Customer != "" {
			text += fmt.Sprintf(" (%s)", p.Customer)
		}
		return text, event == events.TableBillRequest

	case events.OrderCreatedPayload:
		total, err := decimal.NewFromString(p.Total)
		if err != nil {
			total = decimal.Zero
		}
		return fmt.Sprintf("🍽 New order #%d from table %d: %d item(s), total %s",
			p.OrderNumber, p.TableNumber, p.ItemCount, utils.FormatCurrency(s.currencySymbol, total)), event == events.OrderCreated
	}
	return "", false
}
