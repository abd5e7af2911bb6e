package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AllanGomesCorrea/QRmenu-sub001/events"
	"github.com/AllanGomesCorrea/QRmenu-sub001/models"
)

func TestGetTableStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	status, err := f.sessions.GetTableStatus(ctx, testSlug, testQR)
	require.NoError(t, err)
	assert.Equal(t, f.table.ID, status.Table.ID)
	assert.Equal(t, 12, status.Table.Number)
	assert.Equal(t, "Bistro", status.Restaurant.Name)
	assert.True(t, status.CanJoin)
	assert.Equal(t, int64(0), status.Table.ActiveSessions)

	f.register(t, "Ana", testPhone, testFP)
	status, err = f.sessions.GetTableStatus(ctx, testSlug, testQR)
	require.NoError(t, err)
	assert.Equal(t, int64(1), status.Table.ActiveSessions)
	assert.Equal(t, models.TableOccupied, status.Table.Status)

	_, err = f.sessions.GetTableStatus(ctx, testSlug, "T-404")
	assert.ErrorIs(t, err, ErrTableNotFound)

	_, err = f.sessions.GetTableStatus(ctx, "other-place", testQR)
	assert.ErrorIs(t, err, ErrTableNotFound)
}

func TestGetTableStatus_InactiveRestaurantHidden(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Model(&models.Restaurant{}).Where("id = ?", f.restaurant.ID).Update("is_active", false).Error)

	_, err := f.sessions.GetTableStatus(context.Background(), testSlug, testQR)
	assert.ErrorIs(t, err, ErrTableNotFound)
}

func TestCreateSession_SameDeviceReusesSession(t *testing.T) {
	f := newFixture(t)

	first := f.register(t, "Ana", testPhone, testFP)
	assert.NotEmpty(t, first.ID)
	assert.False(t, first.IsVerified)
	assert.True(t, first.IsActive)
	assert.Equal(t, f.clock.Now().Add(4*time.Hour), first.ExpiresAt)

	f.clock.Advance(10 * time.Minute)
	second := f.register(t, "Ana Maria", testPhone, testFP)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Ana Maria", second.CustomerName)
	assert.Equal(t, f.clock.Now().Add(4*time.Hour), second.ExpiresAt)

	var count int64
	require.NoError(t, f.db.Model(&models.TableSession{}).Where("table_id = ?", f.table.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// ACTIVE -> OCCUPIED hanya sekali
	updates := f.rec.byEvent(events.TableUpdated)
	require.Len(t, updates, 1)
	assert.Equal(t, events.StaffRooms(f.restaurant.ID), updates[0].Rooms)
	assert.Equal(t, models.TableOccupied, updates[0].Data.(events.TableUpdatedPayload).Status)
}

func TestCreateSession_PhoneChangeRequiresNewVerification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	verified := f.verified(t, "Ana", testPhone, testFP)
	require.True(t, verified.Session.IsVerified)

	session := f.register(t, "Ana", "11988887777", testFP)
	assert.Equal(t, verified.Session.ID, session.ID)
	assert.False(t, session.IsVerified)
	assert.Equal(t, "11988887777", session.CustomerPhone)

	_, err := f.sessions.ResolveToken(ctx, verified.Token)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestCreateSession_DifferentDevicesShareTable(t *testing.T) {
	f := newFixture(t)

	a := f.register(t, "Ana", testPhone, "D1")
	b := f.register(t, "Bruno", "11977776666", "D2")
	assert.NotEqual(t, a.ID, b.ID)

	sessions, err := f.sessions.ListTableSessions(context.Background(), f.restaurant.ID, f.table.ID)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
}

func TestCreateSession_TableFull(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Model(&models.Table{}).Where("id = ?", f.table.ID).Update("capacity", 2).Error)

	f.register(t, "Ana", testPhone, "D1")
	f.register(t, "Bruno", "11977776666", "D2")

	_, err := f.sessions.CreateSession(context.Background(), CreateSessionInput{
		Slug:              testSlug,
		QRCode:            testQR,
		CustomerName:      "Carla",
		CustomerPhone:     "11966665555",
		DeviceFingerprint: "D3",
	})
	assert.ErrorIs(t, err, ErrTableFull)

	// device yang sudah terdaftar tetap bisa masuk lagi
	again := f.register(t, "Ana", testPhone, "D1")
	assert.True(t, again.IsActive)
}

func TestCreateSession_ConcurrentDevicesRespectCapacity(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Model(&models.Table{}).Where("id = ?", f.table.ID).Update("capacity", 1).Error)

	errs := parallel(6, func(i int) error {
		_, err := f.sessions.CreateSession(context.Background(), CreateSessionInput{
			Slug:              testSlug,
			QRCode:            testQR,
			CustomerName:      fmt.Sprintf("Guest %d", i),
			CustomerPhone:     fmt.Sprintf("1190000000%d", i),
			DeviceFingerprint: fmt.Sprintf("D%d", i),
		})
		return err
	})
	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, ErrTableFull)
	}
	assert.Equal(t, 1, created)

	var active int64
	require.NoError(t, f.db.Model(&models.TableSession{}).
		Where("table_id = ? AND is_active = ?", f.table.ID, true).Count(&active).Error)
	assert.Equal(t, int64(1), active)
}

func TestCreateSession_TableNotAcceptingSessions(t *testing.T) {
	for _, status := range []string{models.TableInactive, models.TableClosed, models.TableBillRequested} {
		t.Run(status, func(t *testing.T) {
			f := newFixture(t)
			require.NoError(t, f.db.Model(&models.Table{}).Where("id = ?", f.table.ID).Update("status", status).Error)

			_, err := f.sessions.CreateSession(context.Background(), CreateSessionInput{
				Slug:              testSlug,
				QRCode:            testQR,
				CustomerName:      "Ana",
				CustomerPhone:     testPhone,
				DeviceFingerprint: testFP,
			})
			assert.ErrorIs(t, err, ErrTableInactive)
		})
	}
}

func TestCreateSession_Validation(t *testing.T) {
	f := newFixture(t)
	cases := map[string]CreateSessionInput{
		"empty name":        {CustomerName: " ", CustomerPhone: testPhone, DeviceFingerprint: testFP},
		"bad phone":         {CustomerName: "Ana", CustomerPhone: "12ab", DeviceFingerprint: testFP},
		"missing device id": {CustomerName: "Ana", CustomerPhone: testPhone},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			in.Slug, in.QRCode = testSlug, testQR
			_, err := f.sessions.CreateSession(context.Background(), in)
			require.Error(t, err)
			assert.Equal(t, KindValidation, AsError(err).Kind)
		})
	}
}

func TestCreateSession_ExpiredSessionIsReplaced(t *testing.T) {
	f := newFixture(t)

	old := f.register(t, "Ana", testPhone, testFP)
	f.clock.Advance(5 * time.Hour)
	fresh := f.register(t, "Ana", testPhone, testFP)
	assert.NotEqual(t, old.ID, fresh.ID)

	var stored models.TableSession
	require.NoError(t, f.db.First(&stored, "id = ?", old.ID).Error)
	assert.False(t, stored.IsActive)
	assert.Equal(t, models.CloseReasonSessionExpired, stored.CloseReason)

	closed := f.rec.byEvent(events.SessionClosed)
	require.Len(t, closed, 1)
	assert.Equal(t, []string{events.SessionRoom(old.ID)}, closed[0].Rooms)
}

func TestCheckExistingSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.sessions.CheckExistingSession(ctx, testSlug, testQR, testFP)
	require.NoError(t, err)
	assert.Nil(t, session)

	created := f.register(t, "Ana", testPhone, testFP)
	session, err = f.sessions.CheckExistingSession(ctx, testSlug, testQR, testFP)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, created.ID, session.ID)

	f.clock.Advance(4 * time.Hour)
	session, err = f.sessions.CheckExistingSession(ctx, testSlug, testQR, testFP)
	require.NoError(t, err)
	assert.Nil(t, session)

	_, err = f.sessions.CheckExistingSession(ctx, testSlug, testQR, "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestResolveToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	verified := f.verified(t, "Ana", testPhone, testFP)
	session, err := f.sessions.ResolveToken(ctx, verified.Token)
	require.NoError(t, err)
	assert.Equal(t, verified.Session.ID, session.ID)
	assert.Equal(t, f.restaurant.ID, session.Table.RestaurantID)

	_, err = f.sessions.ResolveToken(ctx, "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidSession)

	f.clock.Advance(4*time.Hour + time.Second)
	_, err = f.sessions.ResolveToken(ctx, verified.Token)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestVerifySession_RotatesToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.verified(t, "Ana", testPhone, testFP)
	second, err := f.sessions.VerifySession(ctx, f.table.ID, testFP, testPhone)
	require.NoError(t, err)
	assert.NotEqual(t, first.Token, second.Token)

	_, err = f.sessions.ResolveToken(ctx, first.Token)
	assert.ErrorIs(t, err, ErrInvalidSession)
	_, err = f.sessions.ResolveToken(ctx, second.Token)
	assert.NoError(t, err)

	_, err = f.sessions.VerifySession(ctx, f.table.ID, testFP, "11900000000")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCloseSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	verified := f.verified(t, "Ana", testPhone, testFP)

	_, err := f.sessions.CloseSession(ctx, f.restaurant.ID+1, verified.Session.ID, models.CloseReasonAdminClosed)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = f.sessions.CloseSession(ctx, f.restaurant.ID, verified.Session.ID, "because")
	assert.ErrorIs(t, err, ErrValidation)

	closed, err := f.sessions.CloseSession(ctx, f.restaurant.ID, verified.Session.ID, models.CloseReasonAdminClosed)
	require.NoError(t, err)
	assert.False(t, closed.IsActive)
	assert.NotNil(t, closed.ClosedAt)

	_, err = f.sessions.ResolveToken(ctx, verified.Token)
	assert.ErrorIs(t, err, ErrInvalidSession)

	// kedua kali tidak error dan tidak emit lagi
	_, err = f.sessions.CloseSession(ctx, f.restaurant.ID, verified.Session.ID, models.CloseReasonAdminClosed)
	require.NoError(t, err)
	require.Len(t, f.rec.byEvent(events.SessionClosed), 1)
}

func TestCloseExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s1 := f.register(t, "Ana", testPhone, "D1")
	f.clock.Advance(2 * time.Hour)
	s2 := f.register(t, "Bruno", "11977776666", "D2")
	f.clock.Advance(2*time.Hour + time.Minute)

	n, err := f.sessions.CloseExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var stored models.TableSession
	require.NoError(t, f.db.First(&stored, "id = ?", s1.ID).Error)
	assert.False(t, stored.IsActive)
	require.NoError(t, f.db.First(&stored, "id = ?", s2.ID).Error)
	assert.True(t, stored.IsActive)

	closed := f.rec.byEvent(events.SessionClosed)
	require.Len(t, closed, 1)
	payload := closed[0].Data.(events.SessionClosedPayload)
	assert.Equal(t, s1.ID, payload.SessionID)
	assert.Equal(t, models.CloseReasonSessionExpired, payload.Reason)
	assert.NotEmpty(t, payload.Message)
}
