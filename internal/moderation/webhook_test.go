package moderation_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/hubwatch/reputeer/internal/moderation"
	"github.com/hubwatch/reputeer/internal/scoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWebhookDispatcher(t *testing.T) {
	t.Parallel()

	directive := &scoring.Directive{
		CommunityID: 1,
		UserID:      9,
		NewScore:    445,
		Threshold:   450,
		Reason:      scoring.DirectiveReasonAutoBan,
	}

	t.Run("posts the directive as JSON", func(t *testing.T) {
		t.Parallel()

		var received scoring.Directive

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			require.NoError(t, sonic.Unmarshal(body, &received))

			w.WriteHeader(http.StatusNoContent)
		}))
		defer server.Close()

		dispatcher := moderation.NewWebhookDispatcher(server.URL, zap.NewNop())
		require.NoError(t, dispatcher.Dispatch(t.Context(), directive))

		assert.Equal(t, *directive, received)
	})

	t.Run("non-2xx responses are errors", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		dispatcher := moderation.NewWebhookDispatcher(server.URL, zap.NewNop())
		err := dispatcher.Dispatch(t.Context(), directive)
		require.ErrorIs(t, err, moderation.ErrDispatchRejected)
	})

	t.Run("unreachable endpoint is an error", func(t *testing.T) {
		t.Parallel()

		dispatcher := moderation.NewWebhookDispatcher("http://127.0.0.1:1/hook", zap.NewNop())
		err := dispatcher.Dispatch(t.Context(), directive)
		require.Error(t, err)
	})
}

func TestLogDispatcher(t *testing.T) {
	t.Parallel()

	dispatcher := moderation.NewLogDispatcher(zap.NewNop())
	require.NoError(t, dispatcher.Dispatch(t.Context(), &scoring.Directive{CommunityID: 1, UserID: 9}))
}
