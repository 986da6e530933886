package core

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/encodeous/ribd/state"
	"github.com/jellydator/ttlcache/v3"
)

// IPCServer answers "inspect" requests on a unix socket with a rendering
// of the current snapshot. Renders are cached per snapshot generation so
// a polling operator does not re-walk large tables.
type IPCServer struct {
	agent *Agent
	ln    net.Listener
	cache *ttlcache.Cache[string, string]
	wg    sync.WaitGroup
}

func StartIPC(agent *Agent, socketPath string) (*IPCServer, error) {
	_ = os.Remove(socketPath)
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, err
	}
	s := &IPCServer{
		agent: agent,
		ln:    ln,
		cache: ttlcache.New[string, string](
			ttlcache.WithTTL[string, string](time.Second),
			ttlcache.WithDisableTouchOnHit[string, string]()),
	}
	s.wg.Add(1)
	go s.serve()
	return s, nil
}

func (s *IPCServer) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return // listener closed
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()
			if err := s.handle(conn); err != nil && err != io.EOF {
				s.agent.Log.Warn("ipc request failed", "err", err)
			}
		}()
	}
}

func (s *IPCServer) handle(conn net.Conn) error {
	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
	cmd, err := rw.ReadString('\n')
	if err != nil {
		return err
	}
	switch cmd {
	case "inspect\n":
		if _, err := rw.WriteString(s.renderInspect()); err != nil {
			return err
		}
		return rw.Flush()
	default:
		return fmt.Errorf("unknown command %s", cmd)
	}
}

func (s *IPCServer) renderInspect() string {
	snap := s.agent.Current()
	key := fmt.Sprintf("inspect@%d", snap.Generation())
	if item := s.cache.Get(key); item != nil {
		return item.Value()
	}
	out := renderSnapshot(snap)
	s.cache.Set(key, out, ttlcache.DefaultTTL)
	s.cache.DeleteExpired()
	return out
}

func renderSnapshot(snap *state.RouteTableMap) string {
	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("Generation: %d\n", snap.Generation()))
	for _, router := range snap.RouterIDs() {
		t := snap.Table(router)
		sb.WriteString(fmt.Sprintf("\nRouter %d:\n", router))
		sb.WriteString(" v4:\n")
		writeRib(&sb, t.RibV4())
		sb.WriteString(" v6:\n")
		writeRib(&sb, t.RibV6())
	}
	sb.WriteRune(0)
	return sb.String()
}

func writeRib(sb *strings.Builder, rib *state.Rib) {
	if rib.Size() == 0 {
		sb.WriteString("  (none)\n")
		return
	}
	for _, rt := range rib.AllSorted() {
		sb.WriteString(fmt.Sprintf("  - %s gen %d\n", rt, rt.Generation()))
	}
}

// Close stops the listener and waits for in-flight requests.
func (s *IPCServer) Close() {
	_ = s.ln.Close()
	s.wg.Wait()
}

// IPCGet queries a running agent's inspect socket.
func IPCGet(socketPath string) (string, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return "", err
	}
	defer conn.Close()
	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))

	_, err = rw.WriteString("inspect\n")
	if err != nil {
		return "", err
	}
	err = rw.Flush()
	if err != nil {
		return "", err
	}

	res, err := rw.ReadString(0)
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSuffix(res, "\x00"), nil
}
