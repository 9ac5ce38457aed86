// Package mse pushes fragmented MP4 media to Media Source Extensions players
// over a websocket.
package mse

import (
	"net"
	"net/http"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/ottpack/pdk/format/fmp4/fragment"
)

// Muxer delivers an init segment followed by media fragments to a single
// websocket client. It implements fragment.Writer.
type Muxer struct {
	conn net.Conn
}

// NewMuxer upgrades the HTTP request to a websocket and drains client frames
// in the background so control frames keep being answered.
func NewMuxer(r *http.Request, w http.ResponseWriter) (*Muxer, error) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		return nil, err
	}
	go func() {
		defer conn.Close()
		for {
			if _, _, err := wsutil.NextReader(conn, ws.StateServerSide); err != nil {
				return
			}
		}
	}()
	return &Muxer{conn: conn}, nil
}

// WriteInit sends the codec string as a text frame followed by the init
// segment (ftyp+moov) as a binary frame. Call once before WriteFragment.
func (m *Muxer) WriteInit(codecs string, init []byte) (err error) {
	if err = wsutil.WriteServerText(m.conn, []byte(codecs)); err != nil {
		return
	}
	return wsutil.WriteServerBinary(m.conn, init)
}

// WriteFragment sends one serialized moof+mdat pair.
func (m *Muxer) WriteFragment(frag fragment.Fragment) error {
	return wsutil.WriteServerBinary(m.conn, frag.Bytes)
}

func (m *Muxer) Close() error {
	return m.conn.Close()
}
