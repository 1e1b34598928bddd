package usecase

import "encoding/json"

// Envelope is the result shape of every one-shot operation:
// {"success": true, ...payload} or {"success": false, "error": "..."}.
type Envelope map[string]any

// Success flattens payload into a successful envelope. Payloads that do not
// encode to a JSON object are placed under "result".
func Success(payload any) Envelope {
	env := Envelope{}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Failure(err)
		}
		if err := json.Unmarshal(b, &env); err != nil {
			env = Envelope{"result": json.RawMessage(b)}
		}
	}
	env["success"] = true
	return env
}

// Failure wraps err. error_kind names the domain error class when there is one.
func Failure(err error) Envelope {
	env := Envelope{"success": false, "error": err.Error()}
	if kind := errorKind(err); kind != "internal" {
		env["error_kind"] = kind
	}
	return env
}

// Result builds the envelope of a (payload, err) pair.
func Result(payload any, err error) Envelope {
	if err != nil {
		return Failure(err)
	}
	return Success(payload)
}

func (e Envelope) OK() bool {
	ok, _ := e["success"].(bool)
	return ok
}
