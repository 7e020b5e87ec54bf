package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"vx-continuous/internal/contract"
	"vx-continuous/internal/roll"
	"vx-continuous/internal/series"
)

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func sampleSeries() *series.ContinuousSeries {
	return &series.ContinuousSeries{
		Underlying: "VX",
		RollPolicy: "vx_settlement",
		Adjustment: roll.AdjustRatio,
		Start:      day(2024, time.January, 10),
		End:        day(2024, time.January, 18),
		Points: []series.Point{
			{Date: day(2024, time.January, 10), Price: decimal.RequireFromString("19.8"), Symbol: "VXF24"},
		},
	}
}

// fakeStore is an in-memory SeriesStore with injectable failures.
type fakeStore struct {
	mu      sync.Mutex
	entries map[string]*series.ContinuousSeries
	getErr  error
	saveErr error
	gets    int
	saves   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[string]*series.ContinuousSeries)}
}

func (s *fakeStore) GetSeries(_ context.Context, fingerprint string) (*series.ContinuousSeries, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.getErr != nil {
		return nil, false, s.getErr
	}
	ser, ok := s.entries[fingerprint]
	return ser, ok, nil
}

func (s *fakeStore) SaveSeries(_ context.Context, fingerprint string, ser *series.ContinuousSeries) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.entries[fingerprint] = ser
	return nil
}

func TestGetOrBuildMemoizes(t *testing.T) {
	m := NewManager(nil, zerolog.Nop())
	var builds int32
	build := func(ctx context.Context) (*series.ContinuousSeries, error) {
		atomic.AddInt32(&builds, 1)
		return sampleSeries(), nil
	}

	first, err := m.GetOrBuild(context.Background(), "fp-1", build)
	if err != nil {
		t.Fatalf("首次构建不应报错: %v", err)
	}
	second, err := m.GetOrBuild(context.Background(), "fp-1", build)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Fatal("相同指纹应返回同一实例")
	}
	if n := atomic.LoadInt32(&builds); n != 1 {
		t.Fatalf("构建函数应只执行一次, 实际 %d", n)
	}
	if m.Len() != 1 {
		t.Fatalf("内存缓存应有 1 条, 实际 %d", m.Len())
	}
}

func TestGetOrBuildConcurrentSingleFlight(t *testing.T) {
	m := NewManager(nil, zerolog.Nop())
	var builds int32
	release := make(chan struct{})
	build := func(ctx context.Context) (*series.ContinuousSeries, error) {
		atomic.AddInt32(&builds, 1)
		<-release
		return sampleSeries(), nil
	}

	const goroutines = 8
	var wg sync.WaitGroup
	results := make([]*series.ContinuousSeries, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := m.GetOrBuild(context.Background(), "fp-concurrent", build)
			if err != nil {
				t.Errorf("并发构建不应报错: %v", err)
				return
			}
			results[i] = s
		}(i)
	}

	// Give every goroutine time to reach the in-flight build before
	// releasing it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := atomic.LoadInt32(&builds); n != 1 {
		t.Fatalf("并发请求应共享一次构建, 实际 %d", n)
	}
	for i := 1; i < goroutines; i++ {
		if results[i] != results[0] {
			t.Fatal("并发请求应返回同一实例")
		}
	}
}

func TestGetOrBuildFailureNotCached(t *testing.T) {
	m := NewManager(nil, zerolog.Nop())
	var builds int32
	boom := errors.New("feed unavailable")
	build := func(ctx context.Context) (*series.ContinuousSeries, error) {
		if atomic.AddInt32(&builds, 1) == 1 {
			return nil, boom
		}
		return sampleSeries(), nil
	}

	_, err := m.GetOrBuild(context.Background(), "fp-retry", build)
	var buildErr *BuildError
	if !errors.As(err, &buildErr) {
		t.Fatalf("构建失败应返回 BuildError, 实际 %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatal("BuildError 应可解包出原始错误")
	}
	if m.Len() != 0 {
		t.Fatal("失败的构建不应写入缓存")
	}

	// An identical request retries the build.
	if _, err := m.GetOrBuild(context.Background(), "fp-retry", build); err != nil {
		t.Fatalf("重试应成功: %v", err)
	}
	if n := atomic.LoadInt32(&builds); n != 2 {
		t.Fatalf("期望重试一次, 实际构建 %d 次", n)
	}
}

func TestGetOrBuildUsesStore(t *testing.T) {
	store := newFakeStore()
	stored := sampleSeries()
	store.entries["fp-stored"] = stored

	m := NewManager(store, zerolog.Nop())
	build := func(ctx context.Context) (*series.ContinuousSeries, error) {
		t.Fatal("持久层命中时不应触发构建")
		return nil, nil
	}

	got, err := m.GetOrBuild(context.Background(), "fp-stored", build)
	if err != nil {
		t.Fatal(err)
	}
	if got != stored {
		t.Fatal("应返回持久层命中的序列")
	}
	if m.Len() != 1 {
		t.Fatal("持久层命中应回填内存缓存")
	}
}

func TestGetOrBuildPersistsAfterBuild(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store, zerolog.Nop())
	build := func(ctx context.Context) (*series.ContinuousSeries, error) {
		return sampleSeries(), nil
	}

	if _, err := m.GetOrBuild(context.Background(), "fp-save", build); err != nil {
		t.Fatal(err)
	}
	if store.saves != 1 {
		t.Fatalf("构建成功后应写入持久层, 实际写入 %d 次", store.saves)
	}
}

func TestGetOrBuildStoreErrorsAreNonFatal(t *testing.T) {
	store := newFakeStore()
	store.getErr = errors.New("connection refused")
	store.saveErr = errors.New("connection refused")

	m := NewManager(store, zerolog.Nop())
	var builds int32
	build := func(ctx context.Context) (*series.ContinuousSeries, error) {
		atomic.AddInt32(&builds, 1)
		return sampleSeries(), nil
	}

	if _, err := m.GetOrBuild(context.Background(), "fp-degraded", build); err != nil {
		t.Fatalf("持久层故障不应导致构建失败: %v", err)
	}
	if n := atomic.LoadInt32(&builds); n != 1 {
		t.Fatalf("持久层故障时应回退到构建, 实际构建 %d 次", n)
	}
}

func TestFlush(t *testing.T) {
	m := NewManager(nil, zerolog.Nop())
	if _, err := m.GetOrBuild(context.Background(), "fp-flush", func(ctx context.Context) (*series.ContinuousSeries, error) {
		return sampleSeries(), nil
	}); err != nil {
		t.Fatal(err)
	}
	if m.Len() != 1 {
		t.Fatal("缓存应有 1 条")
	}
	m.Flush()
	if m.Len() != 0 {
		t.Fatal("Flush 后缓存应为空")
	}
}

func mkContract(t *testing.T, symbol string, expiration time.Time, price string) *contract.Contract {
	t.Helper()
	c, err := contract.NewContract(symbol, expiration, []contract.Observation{
		{Date: day(2024, time.January, 10), Price: decimal.RequireFromString(price)},
	})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestFingerprintStability(t *testing.T) {
	build := func(price string) string {
		t.Helper()
		jan := mkContract(t, "VXF24", day(2024, time.January, 17), price)
		feb := mkContract(t, "VXG24", day(2024, time.February, 14), "21.0")
		chain, err := contract.NewChain("VX", []*contract.Contract{jan, feb})
		if err != nil {
			t.Fatal(err)
		}
		key := KeyForChain(chain, roll.VXSettlement{}, roll.AdjustRatio,
			day(2024, time.January, 10), day(2024, time.January, 18))
		return key.Fingerprint()
	}

	if build("20.5") != build("20.5") {
		t.Fatal("相同输入的指纹应一致")
	}
	if build("20.5") == build("20.6") {
		t.Fatal("单个观测价变化应改变指纹")
	}
}

func TestFingerprintPolicySensitivity(t *testing.T) {
	jan := mkContract(t, "VXF24", day(2024, time.January, 17), "20.5")
	feb := mkContract(t, "VXG24", day(2024, time.February, 14), "21.0")
	chain, err := contract.NewChain("VX", []*contract.Contract{jan, feb})
	if err != nil {
		t.Fatal(err)
	}
	start, end := day(2024, time.January, 10), day(2024, time.January, 18)

	base := KeyForChain(chain, roll.VXSettlement{}, roll.AdjustRatio, start, end).Fingerprint()
	if base == KeyForChain(chain, roll.FixedOffset{Days: 1}, roll.AdjustRatio, start, end).Fingerprint() {
		t.Fatal("换月策略变化应改变指纹")
	}
	if base == KeyForChain(chain, roll.VXSettlement{}, roll.AdjustDifference, start, end).Fingerprint() {
		t.Fatal("调整策略变化应改变指纹")
	}
	if base == KeyForChain(chain, roll.VXSettlement{}, roll.AdjustRatio, start, day(2024, time.January, 17)).Fingerprint() {
		t.Fatal("日期范围变化应改变指纹")
	}
}
