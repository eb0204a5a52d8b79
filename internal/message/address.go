package message

import "net/mail"

// parseAddressList parses an RFC 5322 address-list header value,
// tolerating malformed entries (real-world mail routinely violates the
// grammar) by falling back to an empty result rather than propagating a
// parse error up through header handling.
func parseAddressList(header string) []Address {
	if header == "" {
		return nil
	}
	addrs, err := mail.ParseAddressList(header)
	if err != nil {
		// Some senders emit a single malformed address alongside otherwise
		// valid ones; retry address-by-address so one bad entry doesn't
		// drop the whole header.
		return parseAddressListLenient(header)
	}
	out := make([]Address, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, Address{Name: a.Name, Email: a.Address})
	}
	return out
}

func parseAddressListLenient(header string) []Address {
	var out []Address
	var current []rune
	depth := 0
	flush := func() {
		s := string(current)
		current = current[:0]
		if a, err := mail.ParseAddress(s); err == nil {
			out = append(out, Address{Name: a.Name, Email: a.Address})
		}
	}
	for _, r := range header {
		switch r {
		case '"':
			depth ^= 1
		case ',':
			if depth == 0 {
				flush()
				continue
			}
		}
		current = append(current, r)
	}
	flush()
	return out
}
