// Package lookup provides a minimal lookup/answer provider pair backed
// by a static table of address records. It exists so the service has a
// real provider to drive; it is not a resolver.
package lookup

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/miekg/dns"

	"github.com/kestreldns/kestrel/internal/data"
	"github.com/kestreldns/kestrel/internal/service"
)

// Static answers A and AAAA queries from a fixed name-to-address table.
// It completes every query before Lookup returns, so it is safe behind
// both listener modes.
type Static struct {
	logger *slog.Logger
	a      map[string][]net.IP
	aaaa   map[string][]net.IP
}

// NewStatic builds a provider from a config map of FQDN to address, for
// example { "www.example.com.": "192.0.2.1" }. A value may also be a
// list of address strings.
func NewStatic(logger *slog.Logger, cfg *data.Element) (*Static, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Static{
		logger: logger,
		a:      map[string][]net.IP{},
		aaaa:   map[string][]net.IP{},
	}
	if cfg == nil {
		return s, nil
	}

	keys, err := cfg.Keys()
	if err != nil {
		return nil, fmt.Errorf("static zone config: %w", err)
	}
	for _, name := range keys {
		value, err := cfg.Get(name)
		if err != nil {
			return nil, fmt.Errorf("static zone config: %w", err)
		}
		addrs, err := addressStrings(value)
		if err != nil {
			return nil, fmt.Errorf("static zone entry %q: %w", name, err)
		}
		for _, addr := range addrs {
			if err := s.addRecord(name, addr); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

func addressStrings(value *data.Element) ([]string, error) {
	if s, ok := value.GetString(); ok {
		return []string{s}, nil
	}
	list, ok := value.GetList()
	if !ok {
		return nil, fmt.Errorf("value is a %s, want string or list of strings", value.GetType())
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.GetString()
		if !ok {
			return nil, fmt.Errorf("list item is a %s, want string", item.GetType())
		}
		out = append(out, s)
	}
	return out, nil
}

func (s *Static) addRecord(name, addr string) error {
	ip := net.ParseIP(addr)
	if ip == nil {
		return fmt.Errorf("static zone entry %q: bad address %q", name, addr)
	}
	key := strings.ToLower(dns.Fqdn(name))
	if v4 := ip.To4(); v4 != nil {
		s.a[key] = append(s.a[key], v4)
	} else {
		s.aaaa[key] = append(s.aaaa[key], ip)
	}
	return nil
}

// Lookup resolves the query against the static table. Unparseable
// messages complete unanswered; names outside the table get NXDOMAIN.
func (s *Static) Lookup(_ context.Context, q *service.Query, done func(service.Result)) {
	req := new(dns.Msg)
	if err := req.Unpack(q.Data); err != nil {
		s.logger.Debug("dropping unparseable query", "remote", q.RemoteAddr.String(), "error", err)
		done(service.Result{Answered: false})
		return
	}
	if len(req.Question) != 1 {
		done(service.Result{Answered: false})
		return
	}

	reply := new(dns.Msg)
	reply.SetReply(req)
	reply.Authoritative = true

	question := req.Question[0]
	name := strings.ToLower(question.Name)
	switch question.Qtype {
	case dns.TypeA:
		for _, ip := range s.a[name] {
			reply.Answer = append(reply.Answer, &dns.A{
				Hdr: dns.RR_Header{Name: question.Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 300},
				A:   ip,
			})
		}
	case dns.TypeAAAA:
		for _, ip := range s.aaaa[name] {
			reply.Answer = append(reply.Answer, &dns.AAAA{
				Hdr:  dns.RR_Header{Name: question.Name, Rrtype: dns.TypeAAAA, Class: dns.ClassINET, Ttl: 300},
				AAAA: ip,
			})
		}
	}
	if len(reply.Answer) == 0 {
		if _, known := s.a[name]; !known {
			if _, known6 := s.aaaa[name]; !known6 {
				reply.Rcode = dns.RcodeNameError
			}
		}
	}

	packed, err := reply.Pack()
	if err != nil {
		s.logger.Debug("failed to pack reply", "name", question.Name, "error", err)
		done(service.Result{Answered: false})
		return
	}
	done(service.Result{Answered: true, Data: packed})
}

// Answer hands the packed reply through, truncating over-limit UDP
// responses per RFC 1035.
func (s *Static) Answer(q *service.Query, r service.Result) ([]byte, error) {
	if q.Protocol == "udp" && len(r.Data) > dns.MinMsgSize {
		msg := new(dns.Msg)
		if err := msg.Unpack(r.Data); err != nil {
			return nil, fmt.Errorf("truncating oversized response: %w", err)
		}
		msg.Truncate(dns.MinMsgSize)
		return msg.Pack()
	}
	return r.Data, nil
}
