// Package seed は生成シードのプロセス全体での状態を管理します。
package seed

import (
	"sync"
	"time"
)

// Modulus はシード値の上限（この値未満）です。
const Modulus = 10000

// Event はシードが変更されたことを知らせる通知です。
type Event struct {
	Seed uint32 `json:"seed"`
}

// Observer は Event を受け取るコールバックです。
type Observer func(Event)

// Manager はシード値とロック状態を保持します。
// 読み書きはすべてミューテックスで直列化されるため、複数の生成リクエストから同時に呼んでも安全です。
type Manager struct {
	mu          sync.Mutex
	clock       func() time.Time
	value       uint32
	locked      bool
	initialized bool

	obsMu     sync.RWMutex
	nextID    int
	observers map[int]Observer
}

// Option は Manager の設定を変更します。
type Option func(*Manager)

// WithClock は現在時刻の取得元を差し替えます（テスト用）。
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithInitial は初期値を指定します。値は Modulus で丸められます。
func WithInitial(value uint32) Option {
	return func(m *Manager) {
		m.value = value % Modulus
		m.initialized = true
	}
}

// New は Manager を作成します。初期値は最初のアクセス時に決まります。
func New(opts ...Option) *Manager {
	m := &Manager{
		clock:     time.Now,
		observers: make(map[int]Observer),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) generate() uint32 {
	return uint32(m.clock().UnixMilli() % Modulus)
}

// ensureInit は m.mu を保持した状態で呼び出してください。
func (m *Manager) ensureInit() {
	if !m.initialized {
		m.value = m.generate()
		m.initialized = true
	}
}

// Current は現在のシード値を返します。値は変更せず、通知も行いません。
func (m *Manager) Current() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureInit()
	return m.value
}

// CurrentOrNewSeed はロック中なら現在値をそのまま返し、
// そうでなければ新しいシードを生成して保存し、オブザーバーに通知してから返します。
func (m *Manager) CurrentOrNewSeed() uint32 {
	m.mu.Lock()
	if m.locked {
		m.ensureInit()
		v := m.value
		m.mu.Unlock()
		return v
	}
	m.value = m.generate()
	m.initialized = true
	v := m.value
	m.mu.Unlock()

	m.notify(Event{Seed: v})
	return v
}

// SetLocked はロック状態だけを切り替えます。シードの再生成や通知は行いません。
func (m *Manager) SetLocked(locked bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locked = locked
}

// IsLocked はロック中かどうかを返します。
func (m *Manager) IsLocked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locked
}

// Subscribe はオブザーバーを登録し、登録解除用の関数を返します。
// オブザーバーは CurrentOrNewSeed を呼んだゴルーチン上で同期的に呼ばれます。
func (m *Manager) Subscribe(o Observer) (unsubscribe func()) {
	m.obsMu.Lock()
	id := m.nextID
	m.nextID++
	m.observers[id] = o
	m.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.obsMu.Lock()
			delete(m.observers, id)
			m.obsMu.Unlock()
		})
	}
}

func (m *Manager) notify(e Event) {
	m.obsMu.RLock()
	obs := make([]Observer, 0, len(m.observers))
	for _, o := range m.observers {
		obs = append(obs, o)
	}
	m.obsMu.RUnlock()

	for _, o := range obs {
		o(e)
	}
}
