package compose

type NoticeKind int

const (
	NoticeSuccess NoticeKind = iota
	NoticeError
)

func (k NoticeKind) String() string {
	if k == NoticeError {
		return "error"
	}
	return "success"
}

// Notice is a user-facing outcome of a submit or save.
type Notice struct {
	Kind    NoticeKind
	Op      string
	Message string
	Err     error
}

type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to a Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }
