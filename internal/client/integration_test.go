package client_test

import (
	"context"
	"testing"

	"skibook/internal/bonus"
	"skibook/internal/client"
	"skibook/internal/db/dbtest"
	"skibook/internal/events"
	"skibook/internal/wallet"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type silentNotifier struct{}

func (silentNotifier) BonusCredited(context.Context, int64, string, int64) {}

func TestRegister_CreditsRegistrationAndReferralBonuses(t *testing.T) {
	conn := dbtest.Open(t)
	ctx := context.Background()

	_, err := conn.Exec(`
		INSERT INTO bonus_settings (name, bonus_type, amount_cents) VALUES
			('Welcome', 'registration', 10000),
			('Bring a friend', 'referral', 50000)
	`)
	require.NoError(t, err)

	wallets := wallet.NewRepository(conn)
	bonuses := bonus.NewService(conn, bonus.NewRepository(conn), wallets, silentNotifier{}, events.NopPublisher{}, nil)
	svc := client.NewService(client.NewRepository(conn), bonuses, nil, "test-secret")

	anna, _, _, err := svc.Register(ctx, client.RegisterRequest{FullName: "Anna", Phone: "+79990000001", Password: "password123"})
	require.NoError(t, err)
	require.NotEmpty(t, anna.ReferralCode)

	boris, _, _, err := svc.Register(ctx, client.RegisterRequest{
		FullName: "Boris", Phone: "+79990000002", Password: "password123", ReferralCode: anna.ReferralCode,
	})
	require.NoError(t, err)
	require.NotNil(t, boris.ReferredBy)
	assert.Equal(t, anna.ID, *boris.ReferredBy)

	_, _, _, err = svc.Register(ctx, client.RegisterRequest{
		FullName: "Vera", Phone: "+79990000003", Password: "password123", ReferralCode: anna.ReferralCode,
	})
	require.NoError(t, err)

	annaWallet, err := wallets.GetOrCreateWallet(ctx, anna.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10000+2*50000), annaWallet.BalanceCents)

	borisWallet, err := wallets.GetOrCreateWallet(ctx, boris.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), borisWallet.BalanceCents)

	_, _, _, err = svc.Register(ctx, client.RegisterRequest{FullName: "Boris", Phone: "+79990000002", Password: "password123"})
	assert.ErrorIs(t, err, client.ErrPhoneExists)

	_, _, _, err = svc.Login(ctx, client.LoginRequest{Phone: "+79990000002", Password: "password123"})
	assert.NoError(t, err)
}
