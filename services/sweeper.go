package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AllanGomesCorrea/QRmenu-sub001/cooldown"
	"github.com/AllanGomesCorrea/QRmenu-sub001/utils"
)

// Sweeper membersihkan kode verifikasi expired, session lewat waktu dan entri cooldown lama
type Sweeper struct {
	sessions *SessionService
	codes    *VerificationService
	guard    *cooldown.Guard
	interval time.Duration

	mu       sync.Mutex
	cleanups []namedCleanup

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewSweeper membuat instance baru Sweeper
func NewSweeper(sessions *SessionService, codes *VerificationService, guard *cooldown.Guard, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		sessions: sessions,
		codes:    codes,
		guard:    guard,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

type namedCleanup struct {
	name string
	fn   func() int
}

// AddCleanup mendaftarkan pembersihan tambahan (mis. map rate limiter per IP).
// fn mengembalikan jumlah entri yang dihapus.
func (sw *Sweeper) AddCleanup(name string, fn func() int) {
	if fn == nil {
		return
	}
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.cleanups = append(sw.cleanups, namedCleanup{name: name, fn: fn})
}

// Start memulai goroutine sweeper
func (sw *Sweeper) Start() {
	go sw.run()
	utils.InfoLogger.Infof("Sweeper started (interval %s)", sw.interval)
}

// Stop menghentikan sweeper dan menunggu putaran terakhir selesai
func (sw *Sweeper) Stop() {
	sw.once.Do(func() {
		close(sw.stop)
		<-sw.done
		utils.InfoLogger.Info("Sweeper stopped")
	})
}

func (sw *Sweeper) run() {
	defer close(sw.done)
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sw.Sweep(context.Background())
		case <-sw.stop:
			return
		}
	}
}

// SweepResult -> jumlah data yang dibersihkan dalam satu putaran
type SweepResult struct {
	Codes    int64
	Sessions int
	Cooldown int
	Limiters int
}

// Sweep menjalankan satu putaran pembersihan. Error dicatat, putaran berikutnya tetap jalan.
func (sw *Sweeper) Sweep(ctx context.Context) SweepResult {
	var result SweepResult
	if sw.codes != nil {
		n, err := sw.codes.DeleteExpired(ctx)
		if err != nil {
			utils.ErrorLogger.Errorf("Sweeper: %v", err)
		}
		result.Codes = n
	}
	if sw.sessions != nil {
		n, err := sw.sessions.CloseExpired(ctx)
		if err != nil {
			utils.ErrorLogger.Errorf("Sweeper: %v", err)
		}
		result.Sessions = n
	}
	if sw.guard != nil {
		result.Cooldown = sw.guard.Prune()
	}
	sw.mu.Lock()
	cleanups := append([]namedCleanup(nil), sw.cleanups...)
	sw.mu.Unlock()
	for _, c := range cleanups {
		n := c.fn()
		if n > 0 {
			utils.InfoLogger.Debugf("Sweeper: %s removed %d entries", c.name, n)
		}
		result.Limiters += n
	}

	if result.Codes > 0 || result.Sessions > 0 || result.Cooldown > 0 || result.Limiters > 0 {
		utils.InfoLogger.WithFields(logrus.Fields{
			"codes":    result.Codes,
			"sessions": result.Sessions,
			"cooldown": result.Cooldown,
			"limiters": result.Limiters,
		}).Info("Sweeper cleaned up expired data")
	}
	return result
}
