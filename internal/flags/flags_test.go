package flags

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	flags   Flags
	err     error
	fetches int
}

func (f *fakeSource) Fetch(ctx context.Context) (Flags, error) {
	f.fetches++
	if f.err != nil {
		return Flags{}, f.err
	}
	return f.flags, nil
}

func TestCacheServesDefaultsBeforeFirstFetch(t *testing.T) {
	src := &fakeSource{err: errors.New("s3 unavailable")}
	cache := NewCache(src, time.Minute)

	got := cache.Get(context.Background())

	assert.Equal(t, Defaults(), got)
	assert.False(t, got.EnableAssignmentService)
	assert.False(t, got.EnableNotificationService)
}

func TestCacheWithinTTLDoesNotRefetch(t *testing.T) {
	src := &fakeSource{flags: Flags{EnableAssignmentService: true}}
	cache := NewCache(src, time.Minute)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	first := cache.Get(context.Background())
	assert.True(t, first.EnableAssignmentService)
	assert.Equal(t, 1, src.fetches)

	// 59s later: still within TTL
	now = now.Add(59 * time.Second)
	second := cache.Get(context.Background())
	assert.True(t, second.EnableAssignmentService)
	assert.Equal(t, 1, src.fetches)
}

func TestCacheRefetchesAfterTTL(t *testing.T) {
	src := &fakeSource{flags: Flags{EnableAssignmentService: true}}
	cache := NewCache(src, time.Minute)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	cache.Get(context.Background())
	require.Equal(t, 1, src.fetches)

	// Flag flipped at the source; visible after the TTL expires
	src.flags = Flags{EnableAssignmentService: false, EnableNotificationService: true}
	now = now.Add(61 * time.Second)

	got := cache.Get(context.Background())
	assert.Equal(t, 2, src.fetches)
	assert.False(t, got.EnableAssignmentService)
	assert.True(t, got.EnableNotificationService)
}

func TestCacheServesStaleOnRefreshFailure(t *testing.T) {
	src := &fakeSource{flags: Flags{EnableNotificationService: true}}
	cache := NewCache(src, time.Minute)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	cache.Get(context.Background())

	// Source goes down after the first success
	src.err = errors.New("s3 unavailable")
	now = now.Add(5 * time.Minute)

	got := cache.Get(context.Background())
	assert.True(t, got.EnableNotificationService, "stale value should survive a failed refresh")
	assert.Equal(t, 2, src.fetches)
}

func TestSnapshotReportsSourceHealth(t *testing.T) {
	src := &fakeSource{flags: Flags{EnableAssignmentService: true}}
	cache := NewCache(src, time.Minute)

	f, fetchedAt, err := cache.Snapshot()
	assert.Equal(t, Defaults(), f)
	assert.True(t, fetchedAt.IsZero())
	assert.NoError(t, err)

	cache.Get(context.Background())
	src.err = errors.New("s3 unavailable")
	cache.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	cache.Get(context.Background())

	f, fetchedAt, err = cache.Snapshot()
	assert.True(t, f.EnableAssignmentService)
	assert.False(t, fetchedAt.IsZero())
	assert.Error(t, err)
}

func TestChannelGates(t *testing.T) {
	tests := []struct {
		name      string
		flags     Flags
		wantEmail bool
		wantSMS   bool
	}{
		{"all off", Flags{}, false, false},
		{"email without provider", Flags{EnableEmailNotifications: true}, false, false},
		{"email with provider", Flags{EnableEmailNotifications: true, EnableSESProvider: true}, true, false},
		{"sms with provider", Flags{EnableSMSNotifications: true, EnableSNSProvider: true}, false, true},
		{"provider without channel", Flags{EnableSESProvider: true, EnableSNSProvider: true}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantEmail, tt.flags.EmailEnabled())
			assert.Equal(t, tt.wantSMS, tt.flags.SMSEnabled())
		})
	}
}

type fakeObjectGetter struct {
	body string
	err  error
}

func (f *fakeObjectGetter) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.body))}, nil
}

func TestS3SourceParsesDocument(t *testing.T) {
	getter := &fakeObjectGetter{body: `{
		"enable_assignment_service": true,
		"enable_email_notifications": true,
		"enable_ses_provider": true,
		"unknown_future_flag": true
	}`}
	src := NewS3Source(getter, "config-bucket", "config/feature-flags.json")

	f, err := src.Fetch(context.Background())
	require.NoError(t, err)

	assert.True(t, f.EnableAssignmentService)
	assert.True(t, f.EnableEmailNotifications)
	assert.True(t, f.EnableSESProvider)
	assert.False(t, f.EnableNotificationService, "missing keys default to off")
}

func TestS3SourceFetchError(t *testing.T) {
	src := NewS3Source(&fakeObjectGetter{err: errors.New("access denied")}, "config-bucket", "flags.json")

	_, err := src.Fetch(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "config-bucket")
}

func TestS3SourceMalformedJSON(t *testing.T) {
	src := NewS3Source(&fakeObjectGetter{body: "{not json"}, "config-bucket", "flags.json")

	_, err := src.Fetch(context.Background())
	assert.Error(t, err)
}
