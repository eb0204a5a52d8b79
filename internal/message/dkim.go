package message

import (
	"bytes"

	"github.com/emersion/go-msgauth/dkim"
)

// verifyDKIM checks the DKIM-Signature header(s) on a raw message, if
// any. A message with no signature is not a failure — it simply verifies
// false, matching the common case of unsigned internal mail.
func verifyDKIM(raw []byte) (bool, error) {
	verifications, err := dkim.Verify(bytes.NewReader(raw))
	if err != nil {
		return false, err
	}
	for _, v := range verifications {
		if v.Err == nil {
			return true, nil
		}
	}
	return false, nil
}
