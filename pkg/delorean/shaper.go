package delorean

import "github.com/AndrewLester/delorean/internal/ntp"

// Profile is the client family guessed from a query's first byte.
type Profile int

const (
	ProfileDefault Profile = iota
	ProfileMacOS
	ProfileLinux
	ProfileWindows
)

func (p Profile) String() string {
	switch p {
	case ProfileMacOS:
		return "Mac OS X"
	case ProfileLinux:
		return "Linux"
	case ProfileWindows:
		return "Windows"
	default:
		return "Unknown"
	}
}

const (
	responseStratum   byte             = 3
	responsePoll      int8             = 17
	responsePrecision int8             = 0
	responseRootDelay float64          = 0.01
	responseRootDisp  float64          = 0.01
	responseRefid     ntp.ShortEncoded = 423814661
)

// Classify matches the rules in order; the first hit wins.
func Classify(query *ntp.Query) Profile {
	mode := query.Mode

	if query.Leap == 0 && query.Version == 4 && (mode == ntp.CLIENT || mode == ntp.SERVER) {
		return ProfileMacOS
	}
	// 192 is the leap bits left in place (0b11000000); kept alongside the
	// shifted value.
	if (query.Leap == 3 || query.Leap == 192) && query.Version == 4 && mode == ntp.CLIENT {
		return ProfileLinux
	}
	if query.Version == 3 {
		return ProfileWindows
	}
	return ProfileDefault
}

// Build fills in a server reply reporting timestamp (unix epoch). Every
// profile currently gets identical wire content; only the label differs.
func Build(query *ntp.Query, timestamp float64, epochDelta float64) ntp.Response {
	profile := Classify(query)
	ntpTimestamp := timestamp + epochDelta

	return ntp.Response{
		Leap:      0,
		Version:   query.Version,
		Mode:      ntp.SERVER,
		Stratum:   responseStratum,
		Poll:      responsePoll,
		Precision: responsePrecision,
		Rootdelay: responseRootDelay,
		Rootdisp:  responseRootDisp,
		Refid:     responseRefid,
		Reftime:   ntpTimestamp - referenceLag,
		Org:       query.Xmt,
		Rec:       ntpTimestamp,
		Xmt:       ntpTimestamp,
		Label:     profile.String(),
	}
}
