package realtime

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twx0504/sportz-websockets/internal/adapter/metrics"
)

// queued drains the frames waiting in c's send buffer.
func queued(c *Connection) []string {
	var out []string
	for {
		select {
		case frame := <-c.sendCh:
			out = append(out, string(frame))
		default:
			return out
		}
	}
}

func TestRouter_Subscribe(t *testing.T) {
	table := NewTable(nil)
	router := NewRouter(table, nil)
	c := newTestConnection()

	router.HandleFrame(c, []byte(`{"type":"subscribe","matchId":42}`))

	assert.Equal(t, []*Connection{c}, table.SubscribersOf(42))
	frames := queued(c)
	require.Len(t, frames, 1)
	assert.JSONEq(t, `{"type":"subscribed","matchId":42}`, frames[0])
}

func TestRouter_SubscribeTwiceAcksTwice(t *testing.T) {
	table := NewTable(nil)
	router := NewRouter(table, nil)
	c := newTestConnection()

	router.HandleFrame(c, []byte(`{"type":"subscribe","matchId":42}`))
	router.HandleFrame(c, []byte(`{"type":"subscribe","matchId":42}`))

	assert.Len(t, queued(c), 2)
	assert.Equal(t, 1, table.SubscriptionCount())
}

func TestRouter_Unsubscribe(t *testing.T) {
	table := NewTable(nil)
	router := NewRouter(table, nil)
	c := newTestConnection()

	router.HandleFrame(c, []byte(`{"type":"subscribe","matchId":42}`))
	queued(c)

	router.HandleFrame(c, []byte(`{"type":"unsubscribe","matchId":42}`))

	assert.Empty(t, table.SubscribersOf(42))
	assert.Equal(t, 0, table.TopicCount())
	assert.Empty(t, queued(c), "unsubscribe is not acknowledged")
}

func TestRouter_InvalidJSON(t *testing.T) {
	m := metrics.NewWebSocketMetrics(prometheus.NewRegistry())
	router := NewRouter(NewTable(m), m)
	c := newTestConnection()

	router.HandleFrame(c, []byte("not-json"))

	frames := queued(c)
	require.Len(t, frames, 1)
	assert.JSONEq(t, `{"type":"error","message":"Invalid JSON"}`, frames[0])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DecodeErrors))
	assert.True(t, c.IsOpen())
}

func TestRouter_IgnoresOtherShapes(t *testing.T) {
	inputs := []string{
		`{"type":"subscribe"}`,
		`{"type":"subscribe","matchId":"42"}`,
		`{"type":"subscribe","matchId":-1}`,
		`{"type":"subscribe","matchId":1.5}`,
		`{"type":"subscribe","matchId":null}`,
		`{"type":"ping"}`,
		`{"type":7,"matchId":1}`,
		`{"matchId":1}`,
		`[1,2,3]`,
		`"subscribe"`,
		`42`,
		`null`,
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			table := NewTable(nil)
			router := NewRouter(table, nil)
			c := newTestConnection()

			router.HandleFrame(c, []byte(input))

			assert.Empty(t, queued(c))
			assert.Equal(t, 0, table.TopicCount())
		})
	}
}

func TestRouter_ClosedConnectionIsNotSubscribed(t *testing.T) {
	table := NewTable(nil)
	router := NewRouter(table, nil)
	c := newTestConnection()
	c.shutdown(metrics.CloseReasonClient, 0)

	router.HandleFrame(c, []byte(`{"type":"subscribe","matchId":42}`))

	assert.Equal(t, 0, table.TopicCount())
	assert.Empty(t, queued(c))
}
