package catalogue

import "github.com/loki-oidc/loki-splice/pkg/attacktest"

// All returns the fixed, ordered Attack Test Catalogue. valid-delegation is
// always first: the runner's bail-on-baseline-failure option depends on it.
func All() []attacktest.Test {
	return []attacktest.Test{
		validDelegation,
		basicSplice,
		actorClientMismatch,
		audSubBinding,
		upstreamSplice,
		subjectActorSwap,
		tokenTypeMismatch,
		unauthenticatedExchange,
		tokenTypeEscalation,
		audienceTargeting,
		resourceAbuse,
		actClaimStripping,
		mayActEnforcement,
		multiAudience,
		missingAud,
		scopeEscalation,
		delegationImpersonationConfusion,
		circularDelegation,
		chainDepthExhaustion,
		refreshBypass,
		revocationPropagation,
		issuedTokenTypeValidation,
		downstreamAudVerification,
		tokenLifetimeReduction,
		actSubVerification,
		actNestingIntegrity,
	}
}
