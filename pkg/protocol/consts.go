package protocol

const (
	terminatorByte byte   = 0x00
	versionPrefix  string = "ZEPH0."
	// Version written into every outbound notice header
	ProtocolVersion string = "ZEPH0.2"

	// Limits
	MaxOtherFields       int = 10    // Z_MAXOTHERFIELDS
	MaxPacketLen         int = 1024  // Z_MAXPKTLEN, fragmentation threshold
	MaxDatagramLen       int = 65507 // largest IPv4 UDP payload
	MaxAuthenticatorLen  int = 1024
	MaxSubscriptionTable int = 8192
)

// Fixed header field positions (in order on the wire)
const (
	fieldVersion = iota
	fieldNumFields
	fieldKind
	fieldUID
	fieldPort
	fieldAuth
	fieldAuthLen
	fieldAuthenticator
	fieldClass
	fieldInstance
	fieldOpcode
	fieldSender
	fieldRecipient
	fieldDefaultFormat
	fieldChecksum
	fieldMultiNotice
	fieldMultiUID
	// Count of header fields preceding the other-fields list
	fixedHeaderFields
)

// Control notices exchanged with the server
const (
	ControlClass     string = "ZEPHYR_CTL"
	ControlInstance  string = "CLIENT"
	OpSubscribe      string = "SUBSCRIBE"
	OpUnsubscribe    string = "UNSUBSCRIBE"
	OpCancelSubs     string = "CLEARSUB"
	OpRetrieveSubs   string = "GIMME"
	DefaultClass     string = "message"
	DefaultInstance  string = "personal"
	WildcardInstance string = "*"

	DefaultFormat string = "Class $class, Instance $instance:\nTo: @bold($recipient) at $time $date\nFrom: @bold{$1 <$sender>}\n\n$2"
)
