package escl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/brutella/dnssd"
	"github.com/h2non/gock"
	"github.com/stapelberg/airscan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denysvitali/scan2pdf/pkg/device"
)

func fakeLookup(entries map[string][]dnssd.BrowseEntry) lookupFunc {
	return func(ctx context.Context, service string, add dnssd.AddFunc, rmv dnssd.RmvFunc) error {
		for _, e := range entries[service] {
			add(e)
		}
		<-ctx.Done()
		return ctx.Err()
	}
}

func TestListMergesHostsAndDiscovery(t *testing.T) {
	b := New(WithHosts("192.168.1.20"), WithDiscoveryTimeout(10*time.Millisecond))
	b.lookup = fakeLookup(map[string][]dnssd.BrowseEntry{
		ServiceType: {
			{Name: "Brother MFC", Host: "BRN0001.local.", Port: 80, Text: map[string]string{"ty": "Brother MFC-L2710DW", "rs": "/eSCL"}},
			{Name: "Dup", Host: "192.168.1.20.", Port: 80},
		},
		ServiceTypeTLS: {
			{Name: "Canon", IPs: []net.IP{net.ParseIP("10.0.0.5")}, Port: 443, Text: map[string]string{"rs": "escl2"}},
		},
	})

	scanners, err := b.List(context.Background())
	require.NoError(t, err)
	require.Len(t, scanners, 3)
	assert.Equal(t, "192.168.1.20", scanners[0].DeviceID)
	assert.Equal(t, "Brother MFC-L2710DW", scanners[1].Name)
	assert.Equal(t, "BRN0001.local", scanners[1].DeviceID)
	assert.Equal(t, "Canon", scanners[2].Name)
	assert.Equal(t, "10.0.0.5", scanners[2].DeviceID)

	s := b.serviceFor("BRN0001.local")
	assert.Equal(t, "BRN0001.local:80", s.addr)
	assert.Equal(t, "eSCL", s.rs)
	assert.False(t, s.tls)

	s = b.serviceFor("10.0.0.5")
	assert.Equal(t, "10.0.0.5:443", s.addr)
	assert.Equal(t, "escl2", s.rs)
	assert.True(t, s.tls)
}

func TestListPrefersTLSAnnouncement(t *testing.T) {
	b := New(WithDiscoveryTimeout(10 * time.Millisecond))
	b.lookup = fakeLookup(map[string][]dnssd.BrowseEntry{
		ServiceType:    {{Name: "HP", Host: "hp.local.", Port: 8080}},
		ServiceTypeTLS: {{Name: "HP", Host: "hp.local.", Port: 443}},
	})
	scanners, err := b.List(context.Background())
	require.NoError(t, err)
	require.Len(t, scanners, 1)
	assert.True(t, b.serviceFor("hp.local").tls)
}

func TestListDiscoveryDisabled(t *testing.T) {
	b := New(WithHosts("a.lan", "", "https://b.lan:8443"), WithDiscoveryTimeout(0))
	b.lookup = func(ctx context.Context, service string, add dnssd.AddFunc, rmv dnssd.RmvFunc) error {
		t.Fatal("lookup must not be called")
		return nil
	}
	scanners, err := b.List(context.Background())
	require.NoError(t, err)
	require.Len(t, scanners, 2)
	assert.Equal(t, "a.lan", scanners[0].Name)
	assert.Equal(t, "b.lan:8443", scanners[1].Name)
	assert.Equal(t, "https://b.lan:8443", scanners[1].DeviceID)

	s := b.serviceFor("https://b.lan:8443")
	assert.True(t, s.tls)
	assert.Equal(t, "b.lan:8443", s.addr)
}

func TestListDiscoveryFailure(t *testing.T) {
	b := New(WithDiscoveryTimeout(10 * time.Millisecond))
	b.lookup = func(ctx context.Context, service string, add dnssd.AddFunc, rmv dnssd.RmvFunc) error {
		return errors.New("no multicast interface")
	}
	_, err := b.List(context.Background())
	assert.ErrorContains(t, err, "no multicast interface")
}

// esclServer is a minimal eSCL scanner serving pages from an ADF
type esclServer struct {
	rs    string
	mu    sync.Mutex
	pages [][]byte
	next  int
	log   []string
}

func (s *esclServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, r.Method+" "+r.URL.Path)

	prefix := "/" + s.rs
	switch {
	case r.Method == http.MethodGet && r.URL.Path == prefix+"/ScannerStatus":
		adf := AdfLoaded
		if s.next >= len(s.pages) {
			adf = AdfEmpty
		}
		fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<scan:ScannerStatus xmlns:scan="http://schemas.hp.com/imaging/escl/2011/05/03" xmlns:pwg="http://www.pwg.org/schemas/2010/12/sm">
  <pwg:Version>2.63</pwg:Version>
  <pwg:State>Idle</pwg:State>
  <scan:AdfState>%s</scan:AdfState>
</scan:ScannerStatus>`, adf)
	case r.Method == http.MethodGet && r.URL.Path == prefix+"/ScannerCapabilities":
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
<scan:ScannerCapabilities xmlns:scan="http://schemas.hp.com/imaging/escl/2011/05/03" xmlns:pwg="http://www.pwg.org/schemas/2010/12/sm">
  <scan:Adf><scan:AdfSimplexInputCaps><scan:MaxWidth>2550</scan:MaxWidth></scan:AdfSimplexInputCaps></scan:Adf>
</scan:ScannerCapabilities>`)
	case r.Method == http.MethodPost && r.URL.Path == prefix+"/ScanJobs":
		w.Header().Set("Location", prefix+"/ScanJobs/1")
		w.WriteHeader(http.StatusCreated)
	case r.Method == http.MethodGet && r.URL.Path == prefix+"/ScanJobs/1/NextDocument":
		if s.next >= len(s.pages) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(s.pages[s.next])
		s.next++
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *esclServer) requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.log...)
}

func serverEntry(t *testing.T, srv *httptest.Server, rs string) dnssd.BrowseEntry {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, port, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return dnssd.BrowseEntry{
		Name: "Test Scanner",
		Host: host,
		IPs:  []net.IP{net.ParseIP(host)},
		Port: p,
		Text: map[string]string{"ty": "Test Scanner", "rs": rs},
	}
}

func scanAll(t *testing.T, d device.Device) [][]byte {
	t.Helper()
	require.NoError(t, d.SelectFeeder())
	var pages [][]byte
	for i := 0; i < 10; i++ {
		b, err := d.Transfer(context.Background())
		if errors.Is(err, device.ErrFeederEmpty) {
			return pages
		}
		require.NoError(t, err)
		pages = append(pages, b)
	}
	t.Fatal("feeder never ran empty")
	return nil
}

func TestOpenDiscoveredScanner(t *testing.T) {
	es := &esclServer{rs: "escl2", pages: [][]byte{[]byte("page1"), []byte("page2")}}
	srv := httptest.NewServer(es)
	defer srv.Close()

	b := New(WithDiscoveryTimeout(10 * time.Millisecond))
	b.lookup = fakeLookup(map[string][]dnssd.BrowseEntry{
		ServiceType: {serverEntry(t, srv, "/escl2")},
	})
	scanners, err := b.List(context.Background())
	require.NoError(t, err)
	require.Len(t, scanners, 1)
	assert.Equal(t, "127.0.0.1", scanners[0].DeviceID)

	d, err := b.Open(context.Background(), scanners[0].DeviceID)
	require.NoError(t, err)
	pages := scanAll(t, d)
	require.NoError(t, d.Close())

	assert.Equal(t, [][]byte{[]byte("page1"), []byte("page2")}, pages)
	reqs := es.requests()
	assert.Contains(t, reqs, "POST /escl2/ScanJobs")
	assert.Contains(t, reqs, "GET /escl2/ScanJobs/1/NextDocument")
	assert.Contains(t, reqs, "DELETE /escl2/ScanJobs/1")
	for _, r := range reqs {
		assert.True(t, strings.Contains(r, "/escl2/"), r)
	}
}

func TestOpenDiscoveredTLSScanner(t *testing.T) {
	es := &esclServer{rs: "eSCL", pages: [][]byte{[]byte("secure page")}}
	srv := httptest.NewTLSServer(es)
	defer srv.Close()

	b := New(WithDiscoveryTimeout(10*time.Millisecond), WithTransport(srv.Client().Transport))
	b.lookup = fakeLookup(map[string][]dnssd.BrowseEntry{
		ServiceTypeTLS: {serverEntry(t, srv, "")},
	})
	scanners, err := b.List(context.Background())
	require.NoError(t, err)
	require.Len(t, scanners, 1)

	d, err := b.Open(context.Background(), scanners[0].DeviceID)
	require.NoError(t, err)
	pages := scanAll(t, d)
	require.NoError(t, d.Close())

	assert.Equal(t, [][]byte{[]byte("secure page")}, pages)
	assert.Contains(t, es.requests(), "POST /eSCL/ScanJobs")
}

func TestOpenStaticHostWithPort(t *testing.T) {
	es := &esclServer{rs: "eSCL", pages: [][]byte{[]byte("page1")}}
	srv := httptest.NewServer(es)
	defer srv.Close()
	host := strings.TrimPrefix(srv.URL, "http://")

	b := New(WithHosts(host), WithDiscoveryTimeout(0))
	d, err := b.Open(context.Background(), host)
	require.NoError(t, err)
	assert.Len(t, scanAll(t, d), 1)
}

func TestOpenEmptyId(t *testing.T) {
	_, err := New().Open(context.Background(), "")
	assert.ErrorIs(t, err, device.ErrDeviceNotFound)
}

type fakeJob struct {
	pages [][]byte
	idx   int
	err   error
}

func (f *fakeJob) ScanPage() bool {
	if f.idx < len(f.pages) {
		f.idx++
		return true
	}
	return false
}

func (f *fakeJob) CurrentPage() io.Reader {
	return bytes.NewReader(f.pages[f.idx-1])
}

func (f *fakeJob) Err() error {
	return f.err
}

// statusClient returns a client of a scanner that always reports a loaded feeder
func statusClient(t *testing.T) *airscan.Client {
	t.Helper()
	srv := httptest.NewServer(&esclServer{rs: "eSCL", pages: [][]byte{nil}})
	t.Cleanup(srv.Close)
	return New().newClient(staticService(strings.TrimPrefix(srv.URL, "http://")))
}

func TestDeviceTransfer(t *testing.T) {
	job := &fakeJob{pages: [][]byte{[]byte("page1"), []byte("page2")}}
	client := statusClient(t)
	starts := 0
	d := newDevice("scanner.lan", DefaultSource, client, func(c *airscan.Client, source string) (documentsScanner, error) {
		starts++
		assert.Same(t, client, c)
		assert.Equal(t, "Feeder", source)
		return job, nil
	})
	require.NoError(t, d.SelectFeeder())

	ctx := context.Background()
	b, err := d.Transfer(ctx)
	require.NoError(t, err)
	assert.Equal(t, "page1", string(b))
	b, err = d.Transfer(ctx)
	require.NoError(t, err)
	assert.Equal(t, "page2", string(b))
	_, err = d.Transfer(ctx)
	assert.ErrorIs(t, err, device.ErrFeederEmpty)
	assert.Equal(t, 1, starts)
	assert.NoError(t, d.Close())
}

func TestDeviceTransferJobError(t *testing.T) {
	cause := errors.New("409 conflict")
	d := newDevice("scanner.lan", DefaultSource, statusClient(t), func(*airscan.Client, string) (documentsScanner, error) {
		return &fakeJob{err: cause}, nil
	})
	_, err := d.Transfer(context.Background())
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, device.ErrFeederEmpty)
}

// openWithGock opens scanner.lan with every request answered by gock. The
// device is opened before any mock is registered: airscan clones
// http.DefaultTransport, which gock replaces while intercepting.
func openWithGock(t *testing.T) *Device {
	t.Helper()
	b := New(WithHosts("scanner.lan"), WithDiscoveryTimeout(0), WithTransport(gock.DefaultTransport))
	d, err := b.Open(context.Background(), "scanner.lan")
	require.NoError(t, err)
	return d.(*Device)
}

func TestDeviceTransferEmptyFeederStatus(t *testing.T) {
	d := openWithGock(t)
	d.startJob = func(*airscan.Client, string) (documentsScanner, error) {
		t.Fatal("no job must be created when the feeder is empty")
		return nil, nil
	}
	defer gock.Off()
	gock.New("http://scanner.lan").
		Get("/eSCL/ScannerStatus").
		Reply(http.StatusOK).
		BodyString(`<scan:ScannerStatus xmlns:scan="http://schemas.hp.com/imaging/escl/2011/05/03" xmlns:pwg="http://www.pwg.org/schemas/2010/12/sm"><pwg:State>Idle</pwg:State><scan:AdfState>ScannerAdfEmpty</scan:AdfState></scan:ScannerStatus>`)

	_, err := d.Transfer(context.Background())
	assert.ErrorIs(t, err, device.ErrFeederEmpty)
	assert.True(t, gock.IsDone())
}

func TestDeviceTransferBusy(t *testing.T) {
	d := openWithGock(t)
	defer gock.Off()
	gock.New("http://scanner.lan").
		Get("/eSCL/ScannerStatus").
		Reply(http.StatusOK).
		BodyString(`<scan:ScannerStatus xmlns:scan="http://schemas.hp.com/imaging/escl/2011/05/03" xmlns:pwg="http://www.pwg.org/schemas/2010/12/sm"><pwg:State>Processing</pwg:State><scan:AdfState>ScannerAdfLoaded</scan:AdfState></scan:ScannerStatus>`)

	_, err := d.Transfer(context.Background())
	assert.True(t, device.IsTransient(err))
}

func TestDeviceFeederReady(t *testing.T) {
	d := openWithGock(t)
	defer gock.Off()
	gock.New("http://scanner.lan").
		Get("/eSCL/ScannerStatus").
		Reply(http.StatusOK).
		BodyString(`<scan:ScannerStatus xmlns:scan="http://schemas.hp.com/imaging/escl/2011/05/03"><scan:AdfState>ScannerAdfLoaded</scan:AdfState></scan:ScannerStatus>`)

	ready, err := d.FeederReady(context.Background())
	require.NoError(t, err)
	assert.True(t, ready)
}

func TestDeviceFeederReadyHttpError(t *testing.T) {
	d := openWithGock(t)
	defer gock.Off()
	gock.New("http://scanner.lan").
		Get("/eSCL/ScannerStatus").
		Reply(http.StatusServiceUnavailable)

	_, err := d.FeederReady(context.Background())
	assert.ErrorContains(t, err, "503")
}
