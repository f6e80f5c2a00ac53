package objstore

import "github.com/google/uuid"

// mintID returns a new time-ordered, monotonic-within-resolution, URL-safe
// object id. UUIDv7 embeds a millisecond timestamp in its high bits, so ids
// minted later sort later lexicographically within the same millisecond
// window, satisfying the "time-ordered, monotonic" requirement without a
// bespoke id scheme — google/uuid (already a direct dependency for trace and
// record ids elsewhere) added NewV7 support in the version this module pins.
func mintID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
