package session

import "github.com/CTIDashboard/go-api/cti"

// Subscribe returns a channel receiving every entry appended from now on and a
// function that cancels the subscription and closes the channel.
func (s *Session) Subscribe() (<-chan cti.HistoryEntry, func()) {
	ch := make(chan cti.HistoryEntry, subscriberBuffer)

	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once bool
	cancel := func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if once {
			return
		}
		once = true
		delete(s.subs, id)
		close(ch)
	}
	return ch, cancel
}

func (s *Session) broadcast(entry cti.HistoryEntry) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for id, ch := range s.subs {
		select {
		case ch <- entry:
		default:
			s.logger.Debug("Dropping entry for slow subscriber", "subscriber", id, "scan_id", entry.ScanID)
		}
	}
}
