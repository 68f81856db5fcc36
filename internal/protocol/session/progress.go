package session

// Direction tells reads from writes in TransferProgress.
type Direction int

const (
	DirectionRead Direction = iota
	DirectionWrite
)

func (d Direction) String() string {
	if d == DirectionWrite {
		return "write"
	}
	return "read"
}

// TransferProgress is emitted after every chunk of a transfer. Total is 0
// when the size is not known up front.
type TransferProgress struct {
	Direction   Direction
	First       bool
	Transferred uint64
	Total       uint64
}

// ProgressFunc receives progress for a single call.
type ProgressFunc func(TransferProgress)

// Observer receives progress for every transfer on a session. Callbacks run
// synchronously on the transferring goroutine and must not block.
type Observer interface {
	OnRead(TransferProgress)
	OnWrite(TransferProgress)
}

// ObserverFuncs adapts two functions to Observer; nil fields are skipped.
type ObserverFuncs struct {
	Read  func(TransferProgress)
	Write func(TransferProgress)
}

func (o ObserverFuncs) OnRead(p TransferProgress) {
	if o.Read != nil {
		o.Read(p)
	}
}

func (o ObserverFuncs) OnWrite(p TransferProgress) {
	if o.Write != nil {
		o.Write(p)
	}
}

func (s *Session) emit(p TransferProgress, fn ProgressFunc) {
	if fn != nil {
		fn(p)
	}
	if s.observer == nil {
		return
	}
	if p.Direction == DirectionWrite {
		s.observer.OnWrite(p)
		return
	}
	s.observer.OnRead(p)
}
