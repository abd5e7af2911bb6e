package services

// Broadcaster -> publish event ke sekumpulan room. Room tanpa member bukan error.
type Broadcaster interface {
	Emit(rooms []string, event string, data interface{})
}

// FanOut meneruskan setiap event ke beberapa broadcaster (hub websocket, alert Telegram, ...)
type FanOut []Broadcaster

func (f FanOut) Emit(rooms []string, event string, data interface{}) {
	for _, b := range f {
		if b != nil {
			b.Emit(rooms, event, data)
		}
	}
}

// NopBroadcaster dipakai saat realtime tidak dibutuhkan (mis. job maintenance di test)
type NopBroadcaster struct{}

func (NopBroadcaster) Emit([]string, string, interface{}) {}
