package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dynlist/internal/models"
	"github.com/desertthunder/dynlist/internal/shared"
	"github.com/fhs/gompd/v2/mpd"
	"golang.org/x/time/rate"
)

var errClosed = errors.New("connection closed")

// MPDOptions configures an [MPD] connection.
type MPDOptions struct {
	Network           string
	Address           string
	Password          string
	RequestsPerSecond float64 // 0 disables the limiter
	Burst             int
	Logger            *log.Logger
	Metrics           *Metrics
}

// request is one unit of work for the connection goroutine.
type request struct {
	command string
	fn      func(*mpd.Client) error
	reply   chan error
}

// MPD implements [Library] over a single serialized protocol connection.
type MPD struct {
	opts     MPDOptions
	limiter  *rate.Limiter
	requests chan request
	done     chan struct{}
	stopped  chan struct{}
	once     sync.Once
	logger   *log.Logger
	dial     func(network, addr, password string) (*mpd.Client, error)
}

// NewMPD starts the connection goroutine. The first command dials the server.
func NewMPD(opts MPDOptions) *MPD {
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst < 1 {
		burst = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	m := &MPD{
		opts:     opts,
		limiter:  rate.NewLimiter(limit, burst),
		requests: make(chan request),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		logger:   logger.With("remote", opts.Address),
		dial:     dial,
	}
	go m.loop()
	return m
}

func dial(network, addr, password string) (*mpd.Client, error) {
	if password != "" {
		return mpd.DialAuthenticated(network, addr, password)
	}
	return mpd.Dial(network, addr)
}

// loop owns the client for the lifetime of the connection.
func (m *MPD) loop() {
	defer close(m.stopped)
	var client *mpd.Client

	for {
		select {
		case <-m.done:
			if client != nil {
				client.Close()
			}
			return
		case req := <-m.requests:
			if client == nil {
				c, err := m.dial(m.opts.Network, m.opts.Address, m.opts.Password)
				if err != nil {
					req.reply <- fmt.Errorf("%w: dial %s: %w", shared.ErrRemoteConnection, m.opts.Address, err)
					continue
				}
				m.opts.Metrics.dialed()
				m.logger.Debug("connected")
				client = c
			}

			started := time.Now()
			err := req.fn(client)
			if err != nil && client.Ping() != nil {
				m.logger.Warn("connection lost", "command", req.command, "error", err)
				client.Close()
				client = nil
				err = fmt.Errorf("%w: %s: %w", shared.ErrRemoteConnection, req.command, err)
			}
			m.opts.Metrics.observe(req.command, started, err)
			req.reply <- err
		}
	}
}

// do queues fn on the connection. ctx bounds the wait for the limiter and
// the queue only.
func (m *MPD) do(ctx context.Context, command string, fn func(*mpd.Client) error) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: waiting to send %s: %w", shared.ErrTimeout, command, err)
	}

	req := request{command: command, fn: fn, reply: make(chan error, 1)}
	select {
	case m.requests <- req:
	case <-ctx.Done():
		return fmt.Errorf("%w: waiting to send %s: %w", shared.ErrTimeout, command, ctx.Err())
	case <-m.done:
		return fmt.Errorf("%w: %w", shared.ErrRemoteConnection, errClosed)
	}
	return <-req.reply
}

func (m *MPD) Find(ctx context.Context, expr string) ([]*models.Track, error) {
	var attrs []mpd.Attrs
	err := m.do(ctx, "find", func(c *mpd.Client) (err error) {
		attrs, err = c.Find(expr)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tracks(attrs), nil
}

func (m *MPD) Search(ctx context.Context, expr string) ([]*models.Track, error) {
	var attrs []mpd.Attrs
	err := m.do(ctx, "search", func(c *mpd.Client) (err error) {
		attrs, err = c.Search(expr)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tracks(attrs), nil
}

func (m *MPD) ListAll(ctx context.Context) ([]*models.Track, error) {
	var attrs []mpd.Attrs
	err := m.do(ctx, "listallinfo", func(c *mpd.Client) (err error) {
		attrs, err = c.ListAllInfo("/")
		return err
	})
	if err != nil {
		return nil, err
	}
	return tracks(attrs), nil
}

func (m *MPD) StickerFind(ctx context.Context, key string) (map[string]string, error) {
	values := map[string]string{}
	err := m.do(ctx, "sticker find", func(c *mpd.Client) error {
		uris, stickers, err := c.StickerFind("", key)
		if err != nil {
			return err
		}
		for i, uri := range uris {
			if i < len(stickers) {
				values[uri] = stickers[i].Value
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

func (m *MPD) PlaylistURIs(ctx context.Context, name string) ([]string, error) {
	var attrs []mpd.Attrs
	err := m.do(ctx, "listplaylistinfo", func(c *mpd.Client) (err error) {
		attrs, err = c.PlaylistContents(name)
		if err != nil && isNoSuchPlaylist(err) {
			attrs, err = nil, nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	uris := make([]string, 0, len(attrs))
	for _, a := range attrs {
		if uri, ok := a["file"]; ok {
			uris = append(uris, uri)
		}
	}
	return uris, nil
}

// ApplyEdits sends edits as one command list. A rejected command is
// reported as a [shared.PartialBatchError].
func (m *MPD) ApplyEdits(ctx context.Context, name string, edits []models.PlaylistEdit) error {
	if len(edits) == 0 {
		return nil
	}
	err := m.do(ctx, "command list", func(c *mpd.Client) error {
		cl := c.BeginCommandList()
		for _, e := range edits {
			switch e.Kind {
			case models.EditClear:
				cl.PlaylistClear(name)
			case models.EditAdd:
				cl.PlaylistAdd(name, e.URI)
			case models.EditDelete:
				cl.PlaylistDelete(name, e.Pos)
			case models.EditMove:
				cl.PlaylistMove(name, e.Pos, e.To)
			}
		}
		return cl.End()
	})
	if err == nil || errors.Is(err, shared.ErrRemoteConnection) || errors.Is(err, shared.ErrTimeout) {
		return err
	}
	return &shared.PartialBatchError{Index: -1, Err: err}
}

func (m *MPD) ListPlaylists(ctx context.Context) ([]string, error) {
	var attrs []mpd.Attrs
	err := m.do(ctx, "listplaylists", func(c *mpd.Client) (err error) {
		attrs, err = c.ListPlaylists()
		return err
	})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(attrs))
	for _, a := range attrs {
		names = append(names, a["playlist"])
	}
	return names, nil
}

func (m *MPD) TagTypes(ctx context.Context) ([]string, error) {
	var tags []string
	err := m.do(ctx, "tagtypes", func(c *mpd.Client) (err error) {
		tags, err = c.Command("tagtypes").Strings("tagtype")
		return err
	})
	return tags, err
}

func (m *MPD) Ping(ctx context.Context) error {
	return m.do(ctx, "ping", func(c *mpd.Client) error { return c.Ping() })
}

// Close stops the connection goroutine and closes the client.
func (m *MPD) Close() error {
	m.once.Do(func() { close(m.done) })
	<-m.stopped
	return nil
}

func tracks(attrs []mpd.Attrs) []*models.Track {
	out := make([]*models.Track, 0, len(attrs))
	for _, a := range attrs {
		if _, ok := a["file"]; !ok {
			continue
		}
		out = append(out, models.NewTrack(a))
	}
	return out
}

func isNoSuchPlaylist(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "no such playlist")
}
