package state

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wg-federation/wg-federation/internal/configio"
	"github.com/wg-federation/wg-federation/internal/crypto"
	"github.com/wg-federation/wg-federation/internal/events"
	ferrors "github.com/wg-federation/wg-federation/internal/foundation/errors"
	"github.com/wg-federation/wg-federation/internal/model"
)

func TestReload_NotBootstrapped(t *testing.T) {
	h := newHarness(t)

	_, err := h.mgr.Reload(t.Context())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotBootstrapped)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryNotFound))
	assert.Empty(t, h.seen(), "no event fires for a failed reload")
}

func TestReload_OtherErrorsPropagate(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.MkdirAll(h.finder.DataDir(), 0o700))
	require.NoError(t, os.WriteFile(h.finder.State(), []byte("federation: [not, a, mapping]\n"), 0o600))

	_, err := h.mgr.Reload(t.Context())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotBootstrapped)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryState))
}

func TestReload_CanceledContext(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := h.mgr.Reload(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCreateHQState(t *testing.T) {
	h := newHarness(t)

	created, err := h.mgr.CreateHQState(t.Context())
	require.NoError(t, err)

	require.Len(t, created.Interfaces, 1)
	require.Len(t, created.Forums, 1)
	require.Len(t, created.PhoneLines, 1)

	iface := created.Interfaces["wg-federation0"]
	forum := created.Forums["wgf-forum0"]
	phone := created.PhoneLines["wgf-phoneline0"]

	privateKeys := map[string]bool{
		iface.Interface.PrivateKey: true,
		forum.Interface.PrivateKey: true,
		phone.Interface.PrivateKey: true,
	}
	assert.Len(t, privateKeys, 3, "generated private keys must be distinct")
	assert.NotEqual(t, iface.SharedPSK, forum.SharedPSK)

	assert.Equal(t, 10100, iface.Interface.ListenPort)
	assert.Equal(t, 10101, forum.Interface.ListenPort)
	assert.Zero(t, phone.Interface.ListenPort)
	assert.Equal(t, []string{"10.10.100.1/24"}, iface.Interface.Address)
	assert.Equal(t, []string{"10.10.101.1/24"}, forum.Interface.Address)
	assert.Equal(t, []string{"10.10.102.1/24"}, phone.Interface.Address)
	assert.Equal(t, h.finder.ConfigurationPath(model.KindForum, "wgf-forum0"), forum.Path)
	assert.Equal(t, model.KindPhoneLine, phone.Kind)
	assert.Equal(t, "wg-federation0", created.Federation.Name)

	assert.Equal(t, []events.Event{
		events.InterfacesConfigurationBeforeCreate,
		events.ForumsConfigurationBeforeCreate,
		events.PhoneLinesConfigurationBeforeCreate,
		events.StateBeforeCreate,
		events.StateCreated,
		events.PhoneLinesConfigurationCreated,
		events.ForumsConfigurationCreated,
		events.InterfacesConfigurationCreated,
	}, h.seen())
	assert.EqualValues(t, 1, h.saver.saves.Load())

	reloaded, err := h.mgr.Reload(t.Context())
	require.NoError(t, err)
	assert.Equal(t, created, reloaded)
}

func TestCreateHQState_PostUp(t *testing.T) {
	cases := []struct {
		name    string
		method  model.PrivateKeyRetrievalMethod
		command string
		want    string
	}{
		{name: "cleartext", method: model.RetrievalTestInsecureCleartext},
		{name: "env or file", method: model.RetrievalEnvVarOrFile},
		{name: "command", method: model.RetrievalCommand, command: `pass show "wg root"`,
			want: `--root-passphrase-command "pass show \"wg root\""`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			settings := defaultSettings()
			settings.RetrievalMethod = tc.method
			settings.RootPassphraseCommand = tc.command
			h := newHarness(t, withSettings(settings))

			created, err := h.mgr.CreateHQState(t.Context())
			require.NoError(t, err)

			for _, c := range created.AllConfigurations() {
				assert.Equal(t, tc.method, c.Interface.PrivateKeyRetrievalMethod)
				if tc.method.IsCleartext() {
					assert.Empty(t, c.Interface.PostUp, c.Name)
					continue
				}
				require.Len(t, c.Interface.PostUp, 1, c.Name)
				cmd := c.Interface.PostUp[0]
				assert.True(t, strings.HasPrefix(cmd, "wg set %i private-key <(wg-federation hq get-private-key "), cmd)
				assert.Contains(t, cmd, "get-private-key")
				assert.Contains(t, cmd, "--interface-kind "+string(c.Kind)+" ")
				assert.Contains(t, cmd, "--interface-name "+c.Name)
				assert.True(t, strings.HasSuffix(cmd, ")"), cmd)
				if tc.want != "" {
					assert.Contains(t, cmd, tc.want)
				} else {
					assert.NotContains(t, cmd, "--root-passphrase-command")
				}
			}
		})
	}
}

func TestCreateHQState_CommandMethodWithoutCommand(t *testing.T) {
	settings := defaultSettings()
	settings.RetrievalMethod = model.RetrievalCommand
	h := newHarness(t, withSettings(settings))

	_, err := h.mgr.CreateHQState(t.Context())
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
	_, statErr := os.Stat(h.finder.State())
	assert.True(t, errors.Is(statErr, fs.ErrNotExist), "nothing is written when generation fails")
}

func TestCreateHQState_VetoLeavesNoStateBehind(t *testing.T) {
	h := newHarness(t)
	veto := errors.New("not yet")
	h.dispatcher.Subscribe(events.StateBeforeCreate, func(context.Context, events.Event, any) (any, error) {
		return nil, veto
	})

	_, err := h.mgr.CreateHQState(t.Context())
	require.ErrorIs(t, err, veto)

	_, statErr := os.Stat(h.finder.State())
	assert.ErrorIs(t, statErr, fs.ErrNotExist)
	_, err = h.mgr.Reload(t.Context())
	assert.ErrorIs(t, err, ErrNotBootstrapped)
}

func TestCreateHQState_VetoKeepsExistingState(t *testing.T) {
	h := newHarness(t)
	_, err := h.mgr.CreateHQState(t.Context())
	require.NoError(t, err)
	original := h.stateBytes(t)

	h.dispatcher.Subscribe(events.StateBeforeCreate, func(context.Context, events.Event, any) (any, error) {
		return nil, errors.New("not yet")
	})
	_, err = h.mgr.CreateHQState(t.Context())
	require.Error(t, err)
	assert.Equal(t, original, h.stateBytes(t))
}

func TestReload_EmptyStateFileIsNotBootstrapped(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.MkdirAll(h.finder.DataDir(), 0o700))
	require.NoError(t, os.WriteFile(h.finder.State(), nil, 0o600))

	_, err := h.mgr.Reload(t.Context())
	assert.ErrorIs(t, err, ErrNotBootstrapped)
}

func TestCreateHQState_OverwritesExistingState(t *testing.T) {
	h := newHarness(t)
	first, err := h.mgr.CreateHQState(t.Context())
	require.NoError(t, err)
	second, err := h.mgr.CreateHQState(t.Context())
	require.NoError(t, err)

	assert.NotEqual(t, first.Interfaces["wg-federation0"].Interface.PrivateKey,
		second.Interfaces["wg-federation0"].Interface.PrivateKey)
	reloaded, err := h.mgr.Reload(t.Context())
	require.NoError(t, err)
	assert.Equal(t, second, reloaded)
}

func TestCreateHQState_BeforeCreateSubscribersShapeState(t *testing.T) {
	h := newHarness(t)
	h.dispatcher.Subscribe(events.ForumsConfigurationBeforeCreate, func(_ context.Context, _ events.Event, p any) (any, error) {
		c := p.(model.WireguardConfiguration)
		c.Interface.Address = []string{"10.99.0.1/24"}
		return c, nil
	})
	h.dispatcher.Subscribe(events.StateBeforeCreate, func(_ context.Context, _ events.Event, p any) (any, error) {
		st := p.(model.HQState)
		st.Federation.Name = "renamed"
		return st, nil
	})

	created, err := h.mgr.CreateHQState(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"10.99.0.1/24"}, created.Forums["wgf-forum0"].Interface.Address)
	assert.Equal(t, "renamed", created.Federation.Name)

	reloaded, err := h.mgr.Reload(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "renamed", reloaded.Federation.Name)
}

func TestUpdateHQState_MergesAndReloadSeesChanges(t *testing.T) {
	h := newHarness(t)
	before, err := h.mgr.CreateHQState(t.Context())
	require.NoError(t, err)
	h.resetEvents()

	patch := model.StatePatch{
		Federation: &model.FederationPatch{ForumMinPort: model.Ptr(12000)},
		Forums: map[string]model.ConfigurationPatch{
			"wgf-forum0": {Interface: &model.InterfacePatch{ListenPort: model.Ptr(12000)}},
		},
	}
	updated, err := h.mgr.UpdateHQState(t.Context(), patch)
	require.NoError(t, err)

	reloaded, err := h.mgr.Reload(t.Context())
	require.NoError(t, err)
	assert.Equal(t, updated, reloaded)
	assert.Equal(t, patch.ApplyTo(before), reloaded)

	assert.Equal(t, 12000, reloaded.Federation.ForumMinPort)
	assert.Equal(t, "wg-federation0", reloaded.Federation.Name)
	forum := reloaded.Forums["wgf-forum0"]
	assert.Equal(t, 12000, forum.Interface.ListenPort)
	assert.Equal(t, before.Forums["wgf-forum0"].Interface.PrivateKey, forum.Interface.PrivateKey)
	assert.Equal(t, before.Interfaces, reloaded.Interfaces)

	assert.Equal(t, []events.Event{events.StateBeforeUpdate, events.StateUpdated, events.StateLoaded}, h.seen())
}

func TestUpdateHQState_IdempotentForSubsetChanges(t *testing.T) {
	h := newHarness(t)
	_, err := h.mgr.CreateHQState(t.Context())
	require.NoError(t, err)

	patch := model.StatePatch{
		PhoneLines: map[string]model.ConfigurationPatch{
			"wgf-phoneline0": {
				Interface: &model.InterfacePatch{Address: &[]string{"10.20.0.1/24"}, PostUp: &[]string{"true"}},
			},
		},
	}
	once, err := h.mgr.UpdateHQState(t.Context(), patch)
	require.NoError(t, err)
	afterOnce := h.stateBytes(t)

	twice, err := h.mgr.UpdateHQState(t.Context(), patch)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
	assert.Equal(t, afterOnce, h.stateBytes(t))

	current, err := h.mgr.Reload(t.Context())
	require.NoError(t, err)
	again, err := h.mgr.UpdateHQState(t.Context(), model.StatePatchFrom(current))
	require.NoError(t, err)
	assert.Equal(t, current, again)
}

func TestUpdateHQState_MissingStateIsNotTranslated(t *testing.T) {
	h := newHarness(t)
	_, err := h.mgr.UpdateHQState(t.Context(), model.StatePatch{})
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.NotErrorIs(t, err, ErrNotBootstrapped)
	_, statErr := os.Stat(h.finder.State())
	assert.ErrorIs(t, statErr, fs.ErrNotExist, "update must not create the state file")
}

func TestUpdateHQState_VetoLeavesStateUntouched(t *testing.T) {
	h := newHarness(t)
	_, err := h.mgr.CreateHQState(t.Context())
	require.NoError(t, err)
	original := h.stateBytes(t)

	veto := errors.New("maintenance window")
	h.dispatcher.Subscribe(events.StateBeforeUpdate, func(context.Context, events.Event, any) (any, error) {
		return nil, veto
	})
	saves := h.saver.saves.Load()

	_, err = h.mgr.UpdateHQState(t.Context(), model.StatePatch{Federation: &model.FederationPatch{Name: model.Ptr("x")}})
	require.Error(t, err)
	assert.ErrorIs(t, err, veto)
	assert.Equal(t, saves, h.saver.saves.Load())
	assert.Equal(t, original, h.stateBytes(t))
}

func TestUpdateHQState_InvalidResultLeavesStateUntouched(t *testing.T) {
	h := newHarness(t)
	_, err := h.mgr.CreateHQState(t.Context())
	require.NoError(t, err)
	original := h.stateBytes(t)

	_, err = h.mgr.UpdateHQState(t.Context(), model.StatePatch{
		Forums: map[string]model.ConfigurationPatch{"wgf-forum1": {Name: model.Ptr("other")}},
	})
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))
	assert.Equal(t, original, h.stateBytes(t))
}

func TestUpdateHQState_BeforeUpdateReplacesLoadedState(t *testing.T) {
	h := newHarness(t)
	_, err := h.mgr.CreateHQState(t.Context())
	require.NoError(t, err)

	h.dispatcher.Subscribe(events.StateBeforeUpdate, func(_ context.Context, _ events.Event, p any) (any, error) {
		st := p.(model.HQState)
		st.Federation.PhoneLineMinPort = 11200
		return st, nil
	})
	updated, err := h.mgr.UpdateHQState(t.Context(), model.StatePatch{Federation: &model.FederationPatch{Name: model.Ptr("mesh")}})
	require.NoError(t, err)
	assert.Equal(t, "mesh", updated.Federation.Name)
	assert.Equal(t, 11200, updated.Federation.PhoneLineMinPort)
}

func TestUpdateHQState_UpdatedEventFiresAfterLockRelease(t *testing.T) {
	h := newHarness(t)
	_, err := h.mgr.CreateHQState(t.Context())
	require.NoError(t, err)

	var observed model.HQState
	h.dispatcher.Subscribe(events.StateUpdated, func(ctx context.Context, _ events.Event, _ any) (any, error) {
		// A shared lock would block here if the exclusive lock were still held.
		done := make(chan error, 1)
		go func() {
			st, err := h.mgr.Reload(ctx)
			observed = st
			done <- err
		}()
		select {
		case err := <-done:
			return nil, err
		case <-time.After(2 * time.Second):
			return nil, errors.New("state lock still held during STATE_UPDATED")
		}
	})

	updated, err := h.mgr.UpdateHQState(t.Context(), model.StatePatch{Federation: &model.FederationPatch{Name: model.Ptr("after")}})
	require.NoError(t, err)
	assert.Equal(t, "after", observed.Federation.Name)
	assert.Equal(t, updated, observed)
}

func TestUpdateWireguardConfiguration(t *testing.T) {
	h := newHarness(t)
	created, err := h.mgr.CreateHQState(t.Context())
	require.NoError(t, err)
	h.resetEvents()
	saves := h.saver.saves.Load()

	var beforePayload model.WireguardConfiguration
	h.dispatcher.Subscribe(events.ForumsConfigurationBeforeUpdate, func(_ context.Context, _ events.Event, p any) (any, error) {
		beforePayload = p.(model.WireguardConfiguration)
		return nil, nil
	})

	current := created.Forums["wgf-forum0"]
	updated, err := h.mgr.UpdateWireguardConfiguration(t.Context(), model.ConfigurationPatch{
		Interface: &model.InterfacePatch{ListenPort: model.Ptr(10111)},
	}, current)
	require.NoError(t, err)

	assert.Equal(t, 10111, updated.Interface.ListenPort)
	assert.Equal(t, current.Interface.PrivateKey, updated.Interface.PrivateKey)
	assert.Equal(t, updated, beforePayload)
	assert.Equal(t, 10101, current.Interface.ListenPort, "current must not be modified")

	seen := h.seen()
	assert.Equal(t, []events.Event{
		events.ForumsConfigurationBeforeUpdate,
		events.StateBeforeUpdate,
		events.StateUpdated,
		events.ForumsConfigurationUpdated,
	}, seen)
	configurationEvents := 0
	for _, evt := range seen {
		if evt.IsConfiguration() {
			configurationEvents++
		}
	}
	assert.Equal(t, 2, configurationEvents)
	assert.EqualValues(t, saves+1, h.saver.saves.Load(), "exactly one state update")

	reloaded, err := h.mgr.Reload(t.Context())
	require.NoError(t, err)
	assert.Equal(t, updated, reloaded.Forums["wgf-forum0"])
	assert.Equal(t, created.Interfaces, reloaded.Interfaces)
	assert.Equal(t, created.PhoneLines, reloaded.PhoneLines)
	assert.Equal(t, created.Federation, reloaded.Federation)
}

func TestUpdateWireguardConfiguration_ScopedToItsEntry(t *testing.T) {
	h := newHarness(t)
	created, err := h.mgr.CreateHQState(t.Context())
	require.NoError(t, err)

	// Another writer changes the interface entry after the caller read its copy.
	_, err = h.mgr.UpdateHQState(t.Context(), model.StatePatch{
		Interfaces: map[string]model.ConfigurationPatch{
			"wg-federation0": {Interface: &model.InterfacePatch{ListenPort: model.Ptr(10200)}},
		},
	})
	require.NoError(t, err)

	_, err = h.mgr.UpdateWireguardConfiguration(t.Context(), model.ConfigurationPatch{SharedPSK: model.Ptr("rotated")},
		created.PhoneLines["wgf-phoneline0"])
	require.NoError(t, err)

	reloaded, err := h.mgr.Reload(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 10200, reloaded.Interfaces["wg-federation0"].Interface.ListenPort)
	assert.Equal(t, "rotated", reloaded.PhoneLines["wgf-phoneline0"].SharedPSK)
}

func TestUpdateWireguardConfiguration_RejectsIdentityChange(t *testing.T) {
	h := newHarness(t)
	created, err := h.mgr.CreateHQState(t.Context())
	require.NoError(t, err)
	h.resetEvents()

	current := created.Forums["wgf-forum0"]
	_, err = h.mgr.UpdateWireguardConfiguration(t.Context(), model.ConfigurationPatch{Name: model.Ptr("wgf-forum9")}, current)
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))

	_, err = h.mgr.UpdateWireguardConfiguration(t.Context(), model.ConfigurationPatch{Kind: model.Ptr(model.KindPhoneLine)}, current)
	require.Error(t, err)
	assert.Empty(t, h.seen())
}

func TestUpdateWireguardConfiguration_VetoSkipsStateUpdate(t *testing.T) {
	h := newHarness(t)
	created, err := h.mgr.CreateHQState(t.Context())
	require.NoError(t, err)
	saves := h.saver.saves.Load()
	h.resetEvents()

	h.dispatcher.Subscribe(events.InterfacesConfigurationBeforeUpdate, func(context.Context, events.Event, any) (any, error) {
		return nil, ferrors.ValidationError("port reserved").Build()
	})
	_, err = h.mgr.UpdateWireguardConfiguration(t.Context(), model.ConfigurationPatch{
		Interface: &model.InterfacePatch{ListenPort: model.Ptr(22)},
	}, created.Interfaces["wg-federation0"])
	require.Error(t, err)
	assert.Equal(t, saves, h.saver.saves.Load())
	assert.Equal(t, []events.Event{events.InterfacesConfigurationBeforeUpdate}, h.seen())
}

func TestReload_StateLoadedSubscriberTransforms(t *testing.T) {
	h := newHarness(t)
	_, err := h.mgr.CreateHQState(t.Context())
	require.NoError(t, err)

	h.dispatcher.Subscribe(events.StateLoaded, func(_ context.Context, _ events.Event, p any) (any, error) {
		return p.(model.HQState).Redacted(), nil
	})
	st, err := h.mgr.Reload(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "<redacted>", st.Forums["wgf-forum0"].Interface.PrivateKey)
	assert.NotContains(t, string(h.stateBytes(t)), "<redacted>")
}

func TestOperationIDSharedAcrossNestedCalls(t *testing.T) {
	h := newHarness(t)
	created, err := h.mgr.CreateHQState(t.Context())
	require.NoError(t, err)

	ids := map[string]bool{}
	h.dispatcher.SubscribeAll(func(ctx context.Context, _ events.Event, _ any) (any, error) {
		ids[events.OperationIDFrom(ctx)] = true
		return nil, nil
	})
	_, err = h.mgr.UpdateWireguardConfiguration(t.Context(), model.ConfigurationPatch{Path: model.Ptr("/tmp/x.conf")},
		created.Forums["wgf-forum0"])
	require.NoError(t, err)
	assert.Len(t, ids, 1)
	assert.NotContains(t, ids, "")
}

func TestEncryptedAndSignedState(t *testing.T) {
	params := crypto.KDFParams{Time: 1, MemoryKiB: 8, Threads: 1}
	pass := crypto.StaticPassphrase("root-passphrase")
	codec := configio.NewCodec(configio.FormatYAML, crypto.NewEncryptor(pass, params), crypto.NewSigner(pass, params))
	h := newHarness(t, withCodec(codec))

	created, err := h.mgr.CreateHQState(t.Context())
	require.NoError(t, err)

	raw := h.stateBytes(t)
	assert.True(t, crypto.IsSigned(raw))
	assert.NotContains(t, string(raw), created.Forums["wgf-forum0"].Interface.PrivateKey)

	_, err = h.mgr.UpdateHQState(t.Context(), model.StatePatch{Federation: &model.FederationPatch{Name: model.Ptr("sealed")}})
	require.NoError(t, err)
	reloaded, err := h.mgr.Reload(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "sealed", reloaded.Federation.Name)

	wrong := configio.NewCodec(configio.FormatYAML,
		crypto.NewEncryptor(crypto.StaticPassphrase("nope"), params), crypto.NewSigner(crypto.StaticPassphrase("nope"), params))
	other := NewManager(Deps{
		Finder: h.finder, Locker: h.mgr.locker, Loader: wrong, Saver: wrong,
		Events: events.NewDispatcher(), Logger: discardLogger(),
	})
	_, err = other.Reload(t.Context())
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryCrypto))
}

var _ configio.Saver = (*slowSaver)(nil)
