package modem

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestModem(t *testing.T, port *mockPort, opts ...Option) *Modem {
	t.Helper()
	opts = append([]Option{
		WithPrintf(t.Logf),
		WithCommandTimeout(300 * time.Millisecond),
		WithAckTimeout(500 * time.Millisecond),
		WithPollInterval(20 * time.Millisecond),
	}, opts...)
	m := New(port, opts...)
	t.Cleanup(func() { _ = m.Disconnect() })
	return m
}

func TestUpgradeSucceeds(t *testing.T) {
	port := newMockPort(readyReplies())
	m := newTestModem(t, port)

	var mu sync.Mutex
	var events []string
	m.cfg.OnEvent = func(ev Event) {
		mu.Lock()
		events = append(events, ev.SubType)
		mu.Unlock()
	}

	url := "http://fota.example.com/EG800K_01.200-01.300.bin"
	if err := m.StartUpgrade(context.Background(), Request{URL: url, Mode: ResetAuto}); err != nil {
		t.Fatal(err)
	}

	st := m.State()
	if st.Phase != PhaseAwaitingCompletion {
		t.Fatalf("phase after start = %v", st.Phase)
	}
	if st.CurrentVersion != "EG800KEULCR07A07M04_01.200.01.200" || st.VersionNumber != "01.200.01.200" {
		t.Errorf("current version = %q (%q)", st.CurrentVersion, st.VersionNumber)
	}

	written := port.Written()
	wantCmd := `AT+QFOTADL="` + url + `",1,50`
	if written[len(written)-1] != wantCmd {
		t.Errorf("last command = %q, want %q", written[len(written)-1], wantCmd)
	}

	// 模块升级完成后重启，版本更新
	port.Reply(cmdVersion, "\r\nEG800KEULCR07A07M04_01.300.01.300\r\n\r\nOK\r\n")
	port.InjectAfter(50*time.Millisecond,
		fotaURC(subHTTPBeg, ""),
		fotaURC(subHTTPEnd, "0"),
		fotaURC(subStart, ""),
		fotaURC(subUpdating, "50"),
		fotaURC(subUpdating, "100"),
		fotaURC(subEnd, "0"),
	)

	st, err := m.AwaitUpgrade(context.Background(), 3*time.Second)
	if err != nil {
		t.Fatalf("AwaitUpgrade = %v", err)
	}
	if st.Phase != PhaseSucceeded || st.ResultCode == nil || *st.ResultCode != 0 {
		t.Fatalf("state = %+v", st)
	}
	if st.Progress != 100 {
		t.Errorf("progress = %d", st.Progress)
	}

	info := m.QueryModuleInfo()
	if info.VersionNumber != "01.300.01.300" {
		t.Errorf("version number = %q", info.VersionNumber)
	}
	if info.IMEI != "866123456789012" || info.SIMStatus != "ready" {
		t.Errorf("module info = %+v", info)
	}

	mu.Lock()
	defer mu.Unlock()
	if strings.Join(events, ",") != "HTTPSTART,HTTPEND,START,UPDATING,UPDATING,END" {
		t.Errorf("events = %v", events)
	}
}

func TestUpgradeFailsWithCode(t *testing.T) {
	port := newMockPort(readyReplies())
	m := newTestModem(t, port)

	port.InjectAfter(600*time.Millisecond, fotaURC(subUpdating, "10"), fotaURC(subEnd, "506"))

	st, err := m.Upgrade(context.Background(), Request{URL: "http://fota.example.com/bad.bin"}, 3*time.Second)

	var upErr *UpgradeError
	if !errors.As(err, &upErr) || upErr.Code != 506 {
		t.Fatalf("err = %v, want UpgradeError 506", err)
	}
	if st.Phase != PhaseFailed || st.ResultCode == nil || *st.ResultCode != 506 {
		t.Errorf("state = %+v", st)
	}
	if st.Message != "firmware MD5 check error" {
		t.Errorf("message = %q", st.Message)
	}
}

func TestUpgradeTimesOut(t *testing.T) {
	port := newMockPort(readyReplies())
	m := newTestModem(t, port)

	port.InjectAfter(700*time.Millisecond, fotaURC(subUpdating, "10"))

	start := time.Now()
	st, err := m.Upgrade(context.Background(), Request{URL: "http://fota.example.com/slow.bin"}, time.Second)
	if !errors.Is(err, ErrUpgradeTimedOut) {
		t.Fatalf("err = %v, want ErrUpgradeTimedOut", err)
	}
	if st.Phase != PhaseTimedOut || st.ResultCode != nil {
		t.Errorf("state = %+v", st)
	}
	if elapsed := time.Since(start); elapsed < time.Second {
		t.Errorf("returned after %s", elapsed)
	}
}

func TestUpgradeURLLength(t *testing.T) {
	base := "http://fota.example.com/"

	t.Run("exactly 700", func(t *testing.T) {
		port := newMockPort(readyReplies())
		m := newTestModem(t, port)

		url := base + strings.Repeat("a", MaxURLLength-len(base))
		if err := m.StartUpgrade(context.Background(), Request{URL: url}); err != nil {
			t.Fatalf("700 character URL rejected: %v", err)
		}
		if m.State().Phase != PhaseAwaitingCompletion {
			t.Errorf("phase = %v", m.State().Phase)
		}
	})

	t.Run("701 rejected without I/O", func(t *testing.T) {
		port := newMockPort(readyReplies())
		m := newTestModem(t, port)

		url := base + strings.Repeat("a", MaxURLLength+1-len(base))
		err := m.StartUpgrade(context.Background(), Request{URL: url})

		var vErr *ValidationError
		if !errors.As(err, &vErr) || vErr.Field != "url" {
			t.Fatalf("err = %v, want url ValidationError", err)
		}
		if n := port.BytesWritten(); n != 0 {
			t.Errorf("wrote %d bytes", n)
		}
		if st := m.State(); st.Phase != PhaseFailed || st.ResultCode != nil {
			t.Errorf("state = %+v", st)
		}
	})
}

func TestUpgradeNetworkNotRegistered(t *testing.T) {
	replies := readyReplies()
	replies[cmdRegistry] = "\r\n+CREG: 0,2\r\n\r\nOK\r\n"
	port := newMockPort(replies)
	m := newTestModem(t, port)

	err := m.StartUpgrade(context.Background(), Request{URL: "http://fota.example.com/a.bin"})

	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("err = %v, want NetworkError", err)
	}
	if st := m.State(); st.Phase != PhaseFailed || st.Message != "network not registered: searching" {
		t.Errorf("state = %+v", st)
	}
	for _, cmd := range port.Written() {
		if strings.HasPrefix(cmd, "AT+QFOTADL=") {
			t.Errorf("transfer issued despite unregistered network")
		}
	}
}

func TestUpgradeVersionCheckIsBestEffort(t *testing.T) {
	replies := readyReplies()
	replies[cmdVersion] = "\r\nERROR\r\n"
	port := newMockPort(replies)
	m := newTestModem(t, port)

	if err := m.StartUpgrade(context.Background(), Request{URL: "http://fota.example.com/a.bin"}); err != nil {
		t.Fatal(err)
	}
	if st := m.State(); st.Phase != PhaseAwaitingCompletion || st.CurrentVersion != "" {
		t.Errorf("state = %+v", st)
	}
}

func TestUpgradeTransferRejected(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		wantErr error
	}{
		{"error reply", "\r\n+CME ERROR: 50\r\n", nil},
		{"no ack", "", ErrTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			replies := readyReplies()
			if tt.reply == "" {
				delete(replies, "AT+QFOTADL=")
			} else {
				replies["AT+QFOTADL="] = tt.reply
			}
			port := newMockPort(replies)
			m := newTestModem(t, port)

			err := m.StartUpgrade(context.Background(), Request{URL: "http://fota.example.com/a.bin"})

			var trErr *TransferError
			if !errors.As(err, &trErr) {
				t.Fatalf("err = %v, want TransferError", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want wrapping %v", err, tt.wantErr)
			}
			if st := m.State(); st.Phase != PhaseFailed {
				t.Errorf("phase = %v", st.Phase)
			}
		})
	}
}

func TestUpgradeEndInsideAck(t *testing.T) {
	replies := readyReplies()
	replies["AT+QFOTADL="] = "\r\nOK\r\n" + fotaURC(subEnd, "0")
	port := newMockPort(replies)
	m := newTestModem(t, port)

	// END 紧跟在 OK 之后，与应答一起被读到
	st, err := m.Upgrade(context.Background(), Request{URL: "http://fota.example.com/a.bin"}, 2*time.Second)
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if st.Phase != PhaseSucceeded {
		t.Errorf("phase = %v", st.Phase)
	}
}

func TestUpgradeEndBeforeAck(t *testing.T) {
	replies := readyReplies()
	replies["AT+QFOTADL="] = fotaURC(subEnd, "0") + "\r\nOK\r\n"
	port := newMockPort(replies)
	m := newTestModem(t, port)

	if err := m.StartUpgrade(context.Background(), Request{URL: "http://fota.example.com/a.bin"}); err != nil {
		t.Fatal(err)
	}
	if st := m.State(); st.Phase != PhaseSucceeded {
		t.Fatalf("phase = %v", st.Phase)
	}

	st, err := m.AwaitUpgrade(context.Background(), time.Second)
	if err != nil || st.Phase != PhaseSucceeded {
		t.Errorf("AwaitUpgrade = %+v, %v", st, err)
	}
}

func TestUpgradeRejectsConcurrentStart(t *testing.T) {
	port := newMockPort(readyReplies())
	m := newTestModem(t, port)

	if err := m.StartUpgrade(context.Background(), Request{URL: "http://fota.example.com/a.bin"}); err != nil {
		t.Fatal(err)
	}
	if err := m.StartUpgrade(context.Background(), Request{URL: "http://fota.example.com/b.bin"}); !errors.Is(err, ErrUpgradeInProgress) {
		t.Errorf("second start = %v", err)
	}
}

func TestSendWhileAwaiting(t *testing.T) {
	port := newMockPort(readyReplies())
	m := newTestModem(t, port)

	if err := m.StartUpgrade(context.Background(), Request{URL: "http://fota.example.com/a.bin"}); err != nil {
		t.Fatal(err)
	}

	port.Inject(fotaURC(subUpdating, "20"))
	if res := m.Send(cmdSignal); !res.OK || !strings.Contains(res.Text, "+CSQ: 20,99") {
		t.Fatalf("Send while awaiting = %+v", res)
	}

	port.Inject(fotaURC(subEnd, "0"))
	st, err := m.AwaitUpgrade(context.Background(), 2*time.Second)
	if err != nil || st.Phase != PhaseSucceeded {
		t.Errorf("AwaitUpgrade = %+v, %v", st, err)
	}
}

func TestAwaitWithoutStart(t *testing.T) {
	m := newTestModem(t, newMockPort(nil))

	if _, err := m.AwaitUpgrade(context.Background(), time.Second); !errors.Is(err, ErrNotStarted) {
		t.Errorf("err = %v, want ErrNotStarted", err)
	}
}

func TestAwaitCanceled(t *testing.T) {
	port := newMockPort(readyReplies())
	m := newTestModem(t, port)

	if err := m.StartUpgrade(context.Background(), Request{URL: "http://fota.example.com/a.bin"}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	st, err := m.AwaitUpgrade(ctx, time.Minute)
	if err == nil || st.Phase != PhaseFailed {
		t.Errorf("AwaitUpgrade = %+v, %v", st, err)
	}
}

func TestProbeAndNetworkStatus(t *testing.T) {
	port := newMockPort(readyReplies())
	m := newTestModem(t, port)

	if !m.Probe() {
		t.Fatal("probe failed")
	}

	status := m.QueryNetworkStatus()
	if !status.RegistrationKnown || status.Registration != RegisteredHome {
		t.Errorf("registration = %v (known %v)", status.Registration, status.RegistrationKnown)
	}
	if status.Signal == nil || status.Signal.DBM != -73 {
		t.Errorf("signal = %+v", status.Signal)
	}

	silent := newTestModem(t, newMockPort(nil))
	if silent.Probe() {
		t.Error("probe succeeded without reply")
	}
	if st := silent.QueryNetworkStatus(); st.RegistrationKnown || st.Signal != nil {
		t.Errorf("silent network status = %+v", st)
	}
}

func TestRequestValidate(t *testing.T) {
	req := Request{URL: "http://a/b.bin"}
	if err := req.Validate(); err != nil || req.Timeout != defaultDownloadTimeout {
		t.Errorf("default timeout: %v, %d", err, req.Timeout)
	}

	bad := []Request{
		{URL: ""},
		{URL: "http://a/b.bin", Mode: 2},
		{URL: "http://a/b.bin", Timeout: -1},
	}
	for _, r := range bad {
		var vErr *ValidationError
		if err := r.Validate(); !errors.As(err, &vErr) {
			t.Errorf("Validate(%+v) = %v", r, err)
		}
	}
}

func TestDisconnectDuringUpgrade(t *testing.T) {
	port := newMockPort(readyReplies())
	m := New(port, WithCommandTimeout(300*time.Millisecond), WithPollInterval(20*time.Millisecond))

	if err := m.StartUpgrade(context.Background(), Request{URL: "http://fota.example.com/a.bin"}); err != nil {
		t.Fatal(err)
	}
	if err := m.Disconnect(); err != nil {
		t.Fatal(err)
	}

	st := m.State()
	if st.Phase != PhaseFailed || st.Message != "disconnected" {
		t.Errorf("state = %+v", st)
	}
	if res := m.Send("AT"); !errors.Is(res.Err, ErrNotConnected) {
		t.Errorf("send after disconnect = %v", res.Err)
	}
}

func TestUpgradeEndSplitAcrossReads(t *testing.T) {
	port := newMockPort(readyReplies())
	m := newTestModem(t, port)

	if err := m.StartUpgrade(context.Background(), Request{URL: "http://fota.example.com/bad.bin"}); err != nil {
		t.Fatal(err)
	}

	// 结束码被拆成两段到达，中间有多次空读
	port.Inject("\r\n+QIND: \"FOTA\",\"END\",50")
	port.InjectAfter(300*time.Millisecond, "6\r\n")

	st, err := m.AwaitUpgrade(context.Background(), 3*time.Second)

	var upErr *UpgradeError
	if !errors.As(err, &upErr) || upErr.Code != 506 {
		t.Fatalf("err = %v, want UpgradeError 506", err)
	}
	if st.Phase != PhaseFailed || st.ResultCode == nil || *st.ResultCode != 506 {
		t.Errorf("state = %+v", st)
	}
}

func TestUpgradeBareReplies(t *testing.T) {
	port := newMockPort(map[string]string{
		cmdCheck:      "OK",
		cmdEchoOff:    "OK",
		cmdVersion:    "EG800KEULCR07A07M04_01.300.01.300\r\nOK",
		cmdRegistry:   "+CREG: 0,1\r\nOK",
		cmdSignal:     "+CSQ: 20,99\r\nOK",
		"AT+QFOTADL=": "OK",
	})
	m := newTestModem(t, port)

	if err := m.StartUpgrade(context.Background(), Request{URL: "http://fota.example.com/a.bin"}); err != nil {
		t.Fatal(err)
	}
	port.Inject("+QIND: \"FOTA\",\"END\",0\r\n")

	st, err := m.AwaitUpgrade(context.Background(), 3*time.Second)
	if err != nil {
		t.Fatalf("AwaitUpgrade = %v", err)
	}
	if st.Phase != PhaseSucceeded || st.ResultCode == nil || *st.ResultCode != 0 {
		t.Errorf("state = %+v", st)
	}
	if st.CurrentVersion != "EG800KEULCR07A07M04_01.300.01.300" || st.VersionNumber != "01.300.01.300" {
		t.Errorf("version = %q (%q)", st.CurrentVersion, st.VersionNumber)
	}
}

func TestModuleDetailsAndFotaStatus(t *testing.T) {
	port := newMockPort(readyReplies())
	m := newTestModem(t, port)

	info := m.QueryModuleInfo()
	if info.Details != "Quectel EG800K Revision: EG800KEULCR07A07M04" {
		t.Errorf("details = %q", info.Details)
	}

	status := m.QueryNetworkStatus()
	want := []PDPContext{{CID: 1, Active: true}, {CID: 2, Active: false}}
	if len(status.PDPContext) != len(want) || status.PDPContext[0] != want[0] || status.PDPContext[1] != want[1] {
		t.Errorf("pdp context = %+v", status.PDPContext)
	}

	fota, err := m.QueryFotaStatus()
	if err != nil || fota != "+QFOTADL: 0" {
		t.Errorf("fota status = %q, %v", fota, err)
	}

	// 缺少 ATI 与 CGACT 应答时其余字段不受影响
	replies := readyReplies()
	delete(replies, cmdInfo)
	delete(replies, cmdPDPContext)
	replies[cmdFotaStatus] = "\r\nERROR\r\n"
	partial := newTestModem(t, newMockPort(replies))

	if info := partial.QueryModuleInfo(); info.Details != "" || info.IMEI != "866123456789012" {
		t.Errorf("partial info = %+v", info)
	}
	if st := partial.QueryNetworkStatus(); st.PDPContext != nil || !st.Registration.Registered() {
		t.Errorf("partial network status = %+v", st)
	}
	if _, err := partial.QueryFotaStatus(); err == nil {
		t.Error("fota status error reply should fail")
	}
}
