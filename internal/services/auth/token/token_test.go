package token

import (
	"errors"
	"testing"
	"time"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func testCodec(t *testing.T, now time.Time) *Codec {
	t.Helper()
	codec, err := NewCodec(testKey)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	return codec.WithClock(func() time.Time { return now })
}

func TestNewCodecRequiresKey(t *testing.T) {
	if _, err := NewCodec(nil); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	codec := testCodec(t, now)

	claims := NewClaims("user-1", []Scope{ScopePublishMod, ScopeCreateMod}, 30*24*time.Hour, now)
	encoded, err := codec.Encode(claims)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := codec.Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Subject != "user-1" {
		t.Fatalf("subject = %q, want %q", decoded.Subject, "user-1")
	}
	if !decoded.ExpiresAt.Equal(claims.ExpiresAt) {
		t.Fatalf("expiry = %v, want %v", decoded.ExpiresAt, claims.ExpiresAt)
	}
	if !decoded.IssuedAt.Equal(claims.IssuedAt) {
		t.Fatalf("issued at = %v, want %v", decoded.IssuedAt, claims.IssuedAt)
	}
	if decoded.Issuer != ServicePlatform {
		t.Fatalf("issuer = %q, want %q", decoded.Issuer, ServicePlatform)
	}
	if len(decoded.Audience) != 2 || decoded.Audience[0] != ServicePlatform || decoded.Audience[1] != ServiceSccache {
		t.Fatalf("audience = %v", decoded.Audience)
	}
	// NewClaims sorts scopes, so create_mod precedes publish_mod.
	if len(decoded.Scopes) != 2 || decoded.Scopes[0] != ScopeCreateMod || decoded.Scopes[1] != ScopePublishMod {
		t.Fatalf("scopes = %v", decoded.Scopes)
	}
}

func TestEncodeDeterministic(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	codec := testCodec(t, now)
	claims := NewClaims("user-1", []Scope{ScopeCreateMod}, time.Hour, now)

	first, err := codec.Encode(claims)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	second, err := codec.Encode(claims)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if first != second {
		t.Fatal("expected identical encodings for identical claims and key")
	}
}

func TestDecodeRejectsWrongKey(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	codec := testCodec(t, now)
	other, err := NewCodec([]byte("another-signing-key-entirely!!!!"))
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	other = other.WithClock(func() time.Time { return now })

	encoded, err := codec.Encode(NewClaims("user-1", nil, time.Hour, now))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := other.Decode(encoded); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestDecodeRejectsExpired(t *testing.T) {
	minted := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	codec := testCodec(t, minted)
	encoded, err := codec.Encode(NewClaims("user-1", nil, time.Hour, minted))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	later := testCodec(t, minted.Add(2*time.Hour))
	if _, err := later.Decode(encoded); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestDecodeRejectsGarbageAndMissingClaims(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	codec := testCodec(t, now)

	if _, err := codec.Decode("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for garbage, got %v", err)
	}

	// A token without a subject fails the required-claims check even though
	// its signature is valid.
	claims := NewClaims("", nil, time.Hour, now)
	encoded, err := codec.Encode(claims)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := codec.Decode(encoded); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for missing subject, got %v", err)
	}
}

func TestDecodeRejectsForeignAudience(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	codec := testCodec(t, now)

	claims := NewClaims("user-1", nil, time.Hour, now)
	claims.Audience = []Service{ServiceSccache}
	encoded, err := codec.Encode(claims)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := codec.Decode(encoded); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign audience, got %v", err)
	}
}

func TestUnknownScopeRoundTrips(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	codec := testCodec(t, now)

	exotic := Scope("moderate_forums")
	claims := NewClaims("user-1", []Scope{exotic, ScopeCreateMod}, time.Hour, now)
	encoded, err := codec.Encode(claims)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := codec.Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.HasScope(exotic) {
		t.Fatalf("expected unknown scope to survive round-trip, got %v", decoded.Scopes)
	}
	if exotic.Known() {
		t.Fatal("expected exotic scope to report unknown")
	}
	if !ScopeAdminister.Known() || !ServicePlatform.Known() || Service("other").Known() {
		t.Fatal("known/unknown classification broken")
	}
}

func TestHasScope(t *testing.T) {
	claims := Claims{Scopes: []Scope{ScopeCreateMod}}
	if !claims.HasScope(ScopeCreateMod) {
		t.Fatal("expected granted scope")
	}
	if claims.HasScope(ScopeAdminister) {
		t.Fatal("expected missing scope to be denied")
	}
}
