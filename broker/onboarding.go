package broker

import (
	"context"

	"github.com/ndidplatform/idp-agent/accessor"
	"github.com/ndidplatform/idp-agent/o11y"
	"github.com/ndidplatform/idp-agent/proto"
	"github.com/ndidplatform/idp-agent/trustapi"
)

const accessorType = "secp256k1"

const onboardingIAL = 3

// Onboard provisions accessor key material for a new identity,
// registers it with the trust network, and only then registers it in
// the local directory: an identity the upstream rejected must never be
// visible to later lookups.
//
// The inverse failure is surfaced, not hidden: if the upstream
// registration succeeded but the local one fails, the upstream side is
// not rolled back and the caller receives PartialOnboarding.
func (b *Broker) Onboard(ctx context.Context, namespace, identifier string) error {
	user := proto.User{Namespace: namespace, Identifier: identifier}
	if err := user.Validate(); err != nil {
		return proto.ErrInvalidRequest.WithCause(err)
	}

	if _, found, err := b.Directory.ByIdentifier(ctx, namespace, identifier); err != nil {
		return proto.ErrDatabaseError.WithCausef("lookup identity: %w", err)
	} else if found {
		return proto.ErrDuplicateIdentity.WithCausef("identity %q already registered", user.SID())
	}

	material, err := accessor.Generate(user.SID())
	if err != nil {
		o11y.Onboardings.WithLabelValues("keygen_failed").Inc()
		return proto.ErrOnboardingFailed.WithCausef("generate accessor material: %w", err)
	}
	material.Secret, err = accessor.DeriveSecret(namespace, identifier, material.PrivateKey)
	if err != nil {
		o11y.Onboardings.WithLabelValues("keygen_failed").Inc()
		return proto.ErrOnboardingFailed.WithCausef("derive secret: %w", err)
	}
	if err := b.Keys.Put(user.SID(), material); err != nil {
		o11y.Onboardings.WithLabelValues("keystore_failed").Inc()
		return proto.ErrOnboardingFailed.WithCausef("store accessor material: %w", err)
	}

	err = b.Upstream.RegisterIdentity(ctx, trustapi.RegisterIdentityParams{
		Namespace:         namespace,
		Identifier:        identifier,
		AccessorType:      accessorType,
		AccessorPublicKey: material.PublicKey,
		AccessorID:        material.AccessorID,
		AccessorGroupID:   material.AccessorGroupID,
		IAL:               onboardingIAL,
	})
	if err != nil {
		b.Log.Error().Err(err).Str("sid", user.SID()).Msg("onboarding: upstream registration failed")
		o11y.Onboardings.WithLabelValues("upstream_failed").Inc()
		return proto.ErrOnboardingFailed.WithCause(err)
	}

	if _, err := b.Directory.Register(ctx, namespace, identifier); err != nil {
		b.Log.Error().Err(err).Str("sid", user.SID()).
			Msg("onboarding: registered upstream but local registration failed")
		o11y.Onboardings.WithLabelValues("partial").Inc()
		return proto.ErrPartialOnboarding.WithCause(err)
	}

	o11y.Onboardings.WithLabelValues("ok").Inc()
	b.Log.Info().Str("sid", user.SID()).Msg("onboarding: identity registered")
	return nil
}
