package script

import (
	"encoding/json"

	"github.com/vango-dev/webdriverbidi/pkg/protocol"
)

// EvaluateResultType is the tag of an EvaluateResult.
type EvaluateResultType string

const (
	ResultSuccess   EvaluateResultType = "success"
	ResultException EvaluateResultType = "exception"
)

// EvaluateResult is the outcome of script.evaluate and script.callFunction:
// either an EvaluateSuccess or an EvaluateException.
type EvaluateResult interface {
	ResultType() EvaluateResultType
	RealmID() string
}

// EvaluateSuccess is an evaluation that completed normally.
type EvaluateSuccess struct {
	Realm  string
	Result RemoteValue

	AdditionalData map[string]json.RawMessage
}

// EvaluateException is an evaluation that threw.
type EvaluateException struct {
	Realm            string
	ExceptionDetails ExceptionDetails

	AdditionalData map[string]json.RawMessage
}

func (EvaluateSuccess) ResultType() EvaluateResultType   { return ResultSuccess }
func (EvaluateException) ResultType() EvaluateResultType { return ResultException }

func (r EvaluateSuccess) RealmID() string   { return r.Realm }
func (r EvaluateException) RealmID() string { return r.Realm }

// MarshalJSON always fails: evaluation results are receive-only.
func (EvaluateSuccess) MarshalJSON() ([]byte, error) { return nil, protocol.ErrReceiveOnly }

// MarshalJSON always fails: evaluation results are receive-only.
func (EvaluateException) MarshalJSON() ([]byte, error) { return nil, protocol.ErrReceiveOnly }

// DecodeEvaluateResult picks the variant from the "type" tag. Tags other
// than "success" and "exception" fail with protocol.ErrUnknownVariant.
func DecodeEvaluateResult(data []byte) (EvaluateResult, error) {
	r, err := protocol.NewObjectReader("script.EvaluateResult", data)
	if err != nil {
		return nil, err
	}
	tag, err := r.Discriminator("type")
	if err != nil {
		return nil, err
	}

	switch EvaluateResultType(tag) {
	case ResultSuccess:
		var res EvaluateSuccess
		r.Required("realm", &res.Realm)
		r.Required("result", &res.Result)
		res.AdditionalData = r.Extra()
		if err := r.Err(); err != nil {
			return nil, err
		}
		return res, nil
	case ResultException:
		var res EvaluateException
		r.Required("realm", &res.Realm)
		r.Required("exceptionDetails", &res.ExceptionDetails)
		res.AdditionalData = r.Extra()
		if err := r.Err(); err != nil {
			return nil, err
		}
		return res, nil
	default:
		return nil, protocol.UnknownVariant("script.EvaluateResult", "type", tag, string(ResultSuccess), string(ResultException))
	}
}
