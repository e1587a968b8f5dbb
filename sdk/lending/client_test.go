package lending

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sbtlend/crypto"
	nativelending "sbtlend/native/lending"
	"sbtlend/services/lending/engine"
	"sbtlend/services/lending/server"
	"sbtlend/storage"
)

var auth = server.AuthConfig{HMACSecret: "sdk-test-secret"}

func address(b byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[crypto.AddressLength-1] = b
	return crypto.NewAddress(crypto.AccountPrefix, raw)
}

func newDaemon(t *testing.T) string {
	t.Helper()
	svc, err := engine.New(storage.NewMemDB(), engine.Options{Params: nativelending.DefaultParams()})
	require.NoError(t, err)
	srv, err := server.New(svc, nil, nil, server.Config{Auth: auth})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func clientFor(t *testing.T, base string, who crypto.Address) *Client {
	t.Helper()
	token, err := server.IssueToken(auth, who, time.Minute)
	require.NoError(t, err)
	c, err := New(base, WithToken(token))
	require.NoError(t, err)
	return c
}

func TestClientRoundTrip(t *testing.T) {
	base := newDaemon(t)
	ctx := context.Background()
	admin, user := address(0xA0), address(0x01)
	adminClient := clientFor(t, base, admin)
	userClient := clientFor(t, base, user)

	stats, err := adminClient.InitializePool(ctx)
	require.NoError(t, err)
	require.Equal(t, admin.String(), stats.Admin)
	require.NoError(t, adminClient.InitializeRegistry(ctx, ""))

	balance, err := adminClient.Credit(ctx, user.String(), 1000)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), balance)

	_, err = adminClient.Mint(ctx, user.String(), 600)
	require.NoError(t, err)
	multiplier, err := userClient.Multiplier(ctx, user.String())
	require.NoError(t, err)
	require.Equal(t, uint64(110), multiplier)

	profile, err := userClient.Deposit(ctx, 300)
	require.NoError(t, err)
	require.Equal(t, "300", profile.TotalCollateral)

	borrowable, err := userClient.MaxBorrowable(ctx, user.String())
	require.NoError(t, err)
	require.Equal(t, uint64(200), borrowable)

	loan, err := userClient.Borrow(ctx, 150)
	require.NoError(t, err)
	require.Equal(t, "454", loan.InterestRateBps)

	hf, err := userClient.HealthFactor(ctx, user.String())
	require.NoError(t, err)
	require.Equal(t, uint64(133), hf)

	allowed, err := userClient.CanPerformAction(ctx, user.String(), 500)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestClientSurfacesErrorCodes(t *testing.T) {
	base := newDaemon(t)
	ctx := context.Background()
	user := address(0x01)

	_, err := clientFor(t, base, user).Deposit(ctx, 10)
	require.Error(t, err)
	require.True(t, IsCode(err, "not_initialized"), err.Error())

	anonymous, err := New(base)
	require.NoError(t, err)
	_, err = anonymous.Borrow(ctx, 1)
	require.True(t, IsCode(err, "unauthenticated"))

	_, err = anonymous.Events(ctx, 0, 10)
	require.True(t, IsCode(err, "journal_disabled"))

	_, err = New("not a url")
	require.Error(t, err)
}
