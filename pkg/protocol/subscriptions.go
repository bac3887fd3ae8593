package protocol

import (
	"fmt"
)

// Body of a SUBSCRIBE/UNSUBSCRIBE request: class, instance, recipient triples
func SubscriptionFields(subs []Subscription) (body [][]byte) {
	for _, sub := range subs {
		body = append(body, []byte(sub.Class), []byte(sub.Instance), []byte(sub.Recipient))
	}
	return
}

// Reverses SubscriptionFields
func ParseSubscriptionFields(body [][]byte) (subs []Subscription, err error) {
	if len(body)%3 != 0 {
		err = fmt.Errorf("%w: subscription body has %d fields, not a multiple of 3", ErrMalformedNotice, len(body))
		return
	}
	for i := 0; i < len(body); i += 3 {
		subs = append(subs, Subscription{
			Class:     string(body[i]),
			Instance:  string(body[i+1]),
			Recipient: string(body[i+2]),
		})
	}
	return
}

// Server reply to a retrieval request: hex count followed by triples
func SubscriptionTable(subs []Subscription) (body [][]byte) {
	body = append(body, []byte(ascii32(uint32(len(subs)))))
	body = append(body, SubscriptionFields(subs)...)
	return
}

func ParseSubscriptionTable(body [][]byte) (subs []Subscription, err error) {
	if len(body) == 0 {
		err = fmt.Errorf("%w: subscription table missing its count field", ErrMalformedNotice)
		return
	}
	count, err := readAscii32(string(body[0]))
	if err != nil {
		return
	}
	if int(count) > MaxSubscriptionTable {
		err = fmt.Errorf("%w: subscription table claims %d entries, maximum is %d", ErrMalformedNotice, count, MaxSubscriptionTable)
		return
	}
	if len(body)-1 != int(count)*3 {
		err = fmt.Errorf("%w: subscription table claims %d entries but carries %d fields", ErrMalformedNotice, count, len(body)-1)
		return
	}
	subs, err = ParseSubscriptionFields(body[1:])
	return
}

// Whether a delivered notice falls under this subscription
func (sub Subscription) Matches(notice *Notice) bool {
	if sub.Class != notice.Class {
		return false
	}
	if sub.Instance != WildcardInstance && sub.Instance != notice.Instance {
		return false
	}
	return sub.Recipient == "" || sub.Recipient == "*" || sub.Recipient == notice.Recipient
}

func (sub Subscription) String() string {
	return fmt.Sprintf("<%s,%s,%s>", sub.Class, sub.Instance, sub.Recipient)
}
