package pluginregistry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loki-oidc/loki-splice/pkg/plugins"
	"github.com/loki-oidc/loki-splice/pkg/pluginregistry"
)

func fakeDescriptor(id string, phase plugins.Phase, sev plugins.Severity) plugins.Descriptor {
	return plugins.Descriptor{
		ID:          id,
		Name:        id,
		Description: "fake plugin " + id,
		Severity:    sev,
		Phase:       phase,
		Spec:        plugins.SpecRef{Description: "fake spec ref"},
		Apply: func(_ context.Context, _ plugins.Context) plugins.Result {
			return plugins.Result{Applied: true}
		},
	}
}

func TestRegisterAndLookup(t *testing.T) {
	t.Parallel()
	r := pluginregistry.New(nil)
	d := fakeDescriptor("alg-none", plugins.PhaseTokenSigning, plugins.SeverityCritical)

	require.NoError(t, r.Register(d))

	got, err := r.Lookup("alg-none")
	require.NoError(t, err)
	assert.Equal(t, d.ID, got.ID)
}

func TestLookup_UnknownID(t *testing.T) {
	t.Parallel()
	r := pluginregistry.New(nil)

	_, err := r.Lookup("does-not-exist")

	assert.ErrorIs(t, err, pluginregistry.ErrUnknownPlugin)
}

func TestRegister_DisabledIDSilentlyDropped(t *testing.T) {
	t.Parallel()
	r := pluginregistry.New([]string{"alg-none"})
	d := fakeDescriptor("alg-none", plugins.PhaseTokenSigning, plugins.SeverityCritical)

	require.NoError(t, r.Register(d))

	_, err := r.Lookup("alg-none")
	assert.ErrorIs(t, err, pluginregistry.ErrUnknownPlugin)
}

func TestRegister_RejectsMissingFields(t *testing.T) {
	t.Parallel()
	r := pluginregistry.New(nil)

	tests := []struct {
		name string
		d    plugins.Descriptor
	}{
		{"missing id", plugins.Descriptor{Name: "x", Description: "d", Severity: plugins.SeverityLow, Phase: plugins.PhaseResponse, Spec: plugins.SpecRef{Description: "s"}, Apply: noop}},
		{"missing name", plugins.Descriptor{ID: "x", Description: "d", Severity: plugins.SeverityLow, Phase: plugins.PhaseResponse, Spec: plugins.SpecRef{Description: "s"}, Apply: noop}},
		{"missing apply", plugins.Descriptor{ID: "x", Name: "x", Description: "d", Severity: plugins.SeverityLow, Phase: plugins.PhaseResponse, Spec: plugins.SpecRef{Description: "s"}}},
		{"missing spec description", plugins.Descriptor{ID: "x", Name: "x", Description: "d", Severity: plugins.SeverityLow, Phase: plugins.PhaseResponse, Apply: noop}},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Error(t, r.Register(tc.d))
		})
	}
}

func noop(_ context.Context, _ plugins.Context) plugins.Result { return plugins.Result{} }

func TestListByPhaseAndSeverity(t *testing.T) {
	t.Parallel()
	r := pluginregistry.New(nil)
	require.NoError(t, r.Register(fakeDescriptor("a", plugins.PhaseTokenSigning, plugins.SeverityCritical)))
	require.NoError(t, r.Register(fakeDescriptor("b", plugins.PhaseTokenClaims, plugins.SeverityCritical)))
	require.NoError(t, r.Register(fakeDescriptor("c", plugins.PhaseTokenSigning, plugins.SeverityLow)))

	assert.Len(t, r.ListByPhase(plugins.PhaseTokenSigning), 2)
	assert.Len(t, r.ListByPhase(plugins.PhaseResponse), 0)
	assert.Len(t, r.ListBySeverity(plugins.SeverityCritical), 2)
	assert.Len(t, r.ListAll(), 3)
}

func TestUnregister(t *testing.T) {
	t.Parallel()
	r := pluginregistry.New(nil)
	require.NoError(t, r.Register(fakeDescriptor("a", plugins.PhaseTokenSigning, plugins.SeverityCritical)))

	r.Unregister("a")

	_, err := r.Lookup("a")
	assert.ErrorIs(t, err, pluginregistry.ErrUnknownPlugin)
}

func TestLoadDir_MissingDirectoryReportsError(t *testing.T) {
	t.Parallel()
	r := pluginregistry.New(nil)

	errs := r.LoadDir("/nonexistent/path/for/test")

	require.Len(t, errs, 1)
}
