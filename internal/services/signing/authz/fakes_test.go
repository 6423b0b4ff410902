package authz

import (
	"context"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/louisbranch/docseal/internal/services/signing/storage"
)

type fakeUsers struct {
	byID map[string]storage.User
}

func (f *fakeUsers) PutUser(_ context.Context, u storage.User) error {
	if f.byID == nil {
		f.byID = map[string]storage.User{}
	}
	f.byID[u.ID] = u
	return nil
}

func (f *fakeUsers) GetUser(_ context.Context, userID string) (storage.User, error) {
	u, ok := f.byID[userID]
	if !ok {
		return storage.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) GetUserByEmail(_ context.Context, email string) (storage.User, error) {
	for _, u := range f.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return storage.User{}, storage.ErrNotFound
}

type usageUpdate struct {
	id      string
	counter uint32
}

type fakePasskeys struct {
	passkeys   []storage.Passkey
	challenges map[string]storage.PasskeyChallenge
	updates    []usageUpdate
}

func (f *fakePasskeys) PutPasskey(_ context.Context, p storage.Passkey) error {
	f.passkeys = append(f.passkeys, p)
	return nil
}

func (f *fakePasskeys) GetPasskeyByCredentialID(_ context.Context, userID string, credentialID string) (storage.Passkey, error) {
	for _, p := range f.passkeys {
		if p.UserID == userID && p.CredentialID == credentialID {
			return p, nil
		}
	}
	return storage.Passkey{}, storage.ErrNotFound
}

func (f *fakePasskeys) ListPasskeys(_ context.Context, userID string) ([]storage.Passkey, error) {
	return f.passkeys, nil
}

func (f *fakePasskeys) UpdatePasskeyUsage(_ context.Context, id string, counter uint32, _ string, _ time.Time) error {
	f.updates = append(f.updates, usageUpdate{id: id, counter: counter})
	return nil
}

func (f *fakePasskeys) PutPasskeyChallenge(_ context.Context, c storage.PasskeyChallenge) error {
	if f.challenges == nil {
		f.challenges = map[string]storage.PasskeyChallenge{}
	}
	f.challenges[c.UserID+"/"+c.TokenReference] = c
	return nil
}

func (f *fakePasskeys) DeletePasskeyChallenge(_ context.Context, userID string, tokenReference string) (storage.PasskeyChallenge, error) {
	key := userID + "/" + tokenReference
	c, ok := f.challenges[key]
	if !ok {
		return storage.PasskeyChallenge{}, storage.ErrNotFound
	}
	delete(f.challenges, key)
	return c, nil
}

type fakeSMSTokens struct {
	tokens []storage.SMSToken
}

func (f *fakeSMSTokens) ReplaceSMSToken(_ context.Context, token storage.SMSToken) error {
	f.tokens = append(f.tokens, token)
	return nil
}

func (f *fakeSMSTokens) ConsumeSMSToken(_ context.Context, phone string, token string, now time.Time) (storage.SMSToken, error) {
	for i := range f.tokens {
		t := &f.tokens[i]
		if t.PhoneNumber == phone && t.Token == token && !t.Used {
			if now.After(t.ExpiresAt) {
				return storage.SMSToken{}, storage.ErrExpired
			}
			t.Used = true
			return *t, nil
		}
	}
	return storage.SMSToken{}, storage.ErrNotFound
}

func (f *fakeSMSTokens) DeleteExpiredSMSTokens(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type fakeParser struct {
	rawID []byte
	err   error
}

func (f fakeParser) ParseCredentialRequestResponseBytes([]byte) (*protocol.ParsedCredentialAssertionData, error) {
	if f.err != nil {
		return nil, f.err
	}
	parsed := &protocol.ParsedCredentialAssertionData{}
	parsed.RawID = f.rawID
	return parsed, nil
}

type fakeValidator struct {
	calls    int
	sessions []webauthn.SessionData
	counter  uint32
	err      error
}

func (f *fakeValidator) ValidateLogin(user webauthn.User, session webauthn.SessionData, _ *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error) {
	f.calls++
	f.sessions = append(f.sessions, session)
	if f.err != nil {
		return nil, f.err
	}
	credential := user.WebAuthnCredentials()[0]
	credential.Authenticator.SignCount = f.counter
	return &credential, nil
}
