package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"

	webpush "github.com/SherClockHolmes/webpush-go"
	log "github.com/sirupsen/logrus"
)

const (
	kvKeyVAPIDPublic  = "webpush_vapid_public"
	kvKeyVAPIDPrivate = "webpush_vapid_private"
)

type kvStore interface {
	GetKV(ctx context.Context, key string) (string, error)
	SetKV(ctx context.Context, key string, value string) error
}

type (
	VAPIDKeys struct {
		Public  string
		Private string
		Subject string
	}

	// VAPIDProvider owns the process-wide signing material. The keypair
	// is generated and persisted exactly once at first startup and never
	// rotated from the send path: rotation invalidates every existing
	// subscription.
	VAPIDProvider struct {
		kv      kvStore
		contact string
		// fallback subject when no explicit contact is configured,
		// resolved lazily from the primary owner's email
		fallbackSubject func(ctx context.Context) string

		once sync.Once
		keys *VAPIDKeys
		err  error
	}
)

func NewVAPIDProvider(kv kvStore, contact string, fallbackSubject func(ctx context.Context) string) *VAPIDProvider {
	return &VAPIDProvider{kv: kv, contact: contact, fallbackSubject: fallbackSubject}
}

// Keys returns the signing material, creating and persisting it on
// first use. Concurrent first callers are serialized by the sync.Once.
func (p *VAPIDProvider) Keys(ctx context.Context) (*VAPIDKeys, error) {
	p.once.Do(func() {
		p.keys, p.err = p.load(ctx)
	})
	return p.keys, p.err
}

func (p *VAPIDProvider) load(ctx context.Context) (*VAPIDKeys, error) {
	subject := p.subject(ctx)
	if subject == "" {
		return nil, fmt.Errorf("no webpush contact configured: %w", ErrChannelDisabled)
	}

	public, err := p.kv.GetKV(ctx, kvKeyVAPIDPublic)
	if err != nil {
		return nil, fmt.Errorf("load vapid public key: %w", err)
	}
	private, err := p.kv.GetKV(ctx, kvKeyVAPIDPrivate)
	if err != nil {
		return nil, fmt.Errorf("load vapid private key: %w", err)
	}
	if public != "" && private != "" {
		return &VAPIDKeys{Public: public, Private: private, Subject: subject}, nil
	}

	private, public, err = webpush.GenerateVAPIDKeys()
	if err != nil {
		return nil, fmt.Errorf("generate vapid keys: %w", err)
	}
	if err := p.kv.SetKV(ctx, kvKeyVAPIDPrivate, private); err != nil {
		return nil, fmt.Errorf("persist vapid private key: %w", err)
	}
	if err := p.kv.SetKV(ctx, kvKeyVAPIDPublic, public); err != nil {
		return nil, fmt.Errorf("persist vapid public key: %w", err)
	}
	log.Info("generated new VAPID keypair")
	return &VAPIDKeys{Public: public, Private: private, Subject: subject}, nil
}

func (p *VAPIDProvider) subject(ctx context.Context) string {
	contact := p.contact
	if contact == "" && p.fallbackSubject != nil {
		contact = p.fallbackSubject(ctx)
	}
	if contact == "" {
		return ""
	}
	if !strings.HasPrefix(contact, "mailto:") {
		contact = "mailto:" + contact
	}
	return contact
}

// Regenerate replaces the keypair. Out-of-band use only: every existing
// push subscription stops validating afterwards.
func (p *VAPIDProvider) Regenerate(ctx context.Context) (*VAPIDKeys, error) {
	private, public, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		return nil, fmt.Errorf("generate vapid keys: %w", err)
	}
	if err := p.kv.SetKV(ctx, kvKeyVAPIDPrivate, private); err != nil {
		return nil, fmt.Errorf("persist vapid private key: %w", err)
	}
	if err := p.kv.SetKV(ctx, kvKeyVAPIDPublic, public); err != nil {
		return nil, fmt.Errorf("persist vapid public key: %w", err)
	}
	log.Warn("VAPID keypair regenerated, existing push subscriptions are now invalid")
	return &VAPIDKeys{Public: public, Private: private, Subject: p.subject(ctx)}, nil
}
