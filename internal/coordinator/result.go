package coordinator

// State discriminates a Result.
type State int

const (
	StateLoading State = iota
	StateSuccess
	StateError
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Result is one signal of a coordinator operation. Data is set only for
// StateSuccess and Err only for StateError.
type Result[T any] struct {
	State State
	Data  T
	Err   error
}

func Loading[T any]() Result[T] {
	return Result[T]{State: StateLoading}
}

func Success[T any](data T) Result[T] {
	return Result[T]{State: StateSuccess, Data: data}
}

func Failure[T any](err error) Result[T] {
	return Result[T]{State: StateError, Err: err}
}

// Message returns the error text of an Error signal and "" otherwise.
func (r Result[T]) Message() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Settle drains ch. It returns the last Success data, if any, and the last
// error. A Read that served cached rows and then failed to refresh yields
// both.
func Settle[R any](ch <-chan Result[R]) (data R, ok bool, err error) {
	for r := range ch {
		switch r.State {
		case StateSuccess:
			data, ok, err = r.Data, true, nil
		case StateError:
			err = r.Err
		}
	}
	return data, ok, err
}
