package ir

import (
	"strconv"
)

// Accessors for transaction arguments. Every failure is an InvalidArgs
// error so dispatch can reject malformed input without touching state.

// GetString returns a required string argument.
func (obj IRObject) GetString(key string) (string, error) {
	v, ok := obj[key]
	if !ok {
		return "", Errorf(CodeInvalidArgs, 0, "missing argument %q", key)
	}
	s, ok := v.(IRString)
	if !ok {
		return "", Errorf(CodeInvalidArgs, 0, "argument %q: want string, got %T", key, v)
	}
	return string(s), nil
}

// GetUint returns a required non-negative integer argument. Decimal strings
// are accepted for values above MaxInt64.
func (obj IRObject) GetUint(key string) (uint64, error) {
	v, ok := obj[key]
	if !ok {
		return 0, Errorf(CodeInvalidArgs, 0, "missing argument %q", key)
	}
	switch n := v.(type) {
	case IRInt:
		if n < 0 {
			return 0, Errorf(CodeInvalidArgs, 0, "argument %q: must be non-negative", key)
		}
		return uint64(n), nil
	case IRString:
		u, err := strconv.ParseUint(string(n), 10, 64)
		if err != nil {
			return 0, Errorf(CodeInvalidArgs, 0, "argument %q: %v", key, err)
		}
		return u, nil
	default:
		return 0, Errorf(CodeInvalidArgs, 0, "argument %q: want integer, got %T", key, v)
	}
}

// GetToken returns a required token id argument.
func (obj IRObject) GetToken(key string) (TokenID, error) {
	u, err := obj.GetUint(key)
	return TokenID(u), err
}

// GetBool returns a required boolean argument.
func (obj IRObject) GetBool(key string) (bool, error) {
	v, ok := obj[key]
	if !ok {
		return false, Errorf(CodeInvalidArgs, 0, "missing argument %q", key)
	}
	b, ok := v.(IRBool)
	if !ok {
		return false, Errorf(CodeInvalidArgs, 0, "argument %q: want bool, got %T", key, v)
	}
	return bool(b), nil
}

// GetAddress returns a required address argument.
func (obj IRObject) GetAddress(key string) (Address, error) {
	s, err := obj.GetString(key)
	if err != nil {
		return "", err
	}
	a, err := ParseAddress(s)
	if err != nil {
		return "", Errorf(CodeInvalidArgs, 0, "argument %q: %v", key, err)
	}
	return a, nil
}

// GetHandle returns a required ciphertext handle argument.
func (obj IRObject) GetHandle(key string) (Handle, error) {
	s, err := obj.GetString(key)
	if err != nil {
		return nil, err
	}
	h, err := ParseHandle(s)
	if err != nil {
		return nil, Errorf(CodeInvalidArgs, 0, "argument %q: %v", key, err)
	}
	return h, nil
}
