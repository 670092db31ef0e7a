package folder

// Observer receives the changes made to a folder. It is called without the folder lock held.
type Observer interface {
	MessagesAdded(folder *Folder, messages []*Message)
	MessagesRemoved(folder *Folder, messages []*Message)
	MessageChanged(folder *Folder, message *Message, old, new Flags)
}

type eventKind int

const (
	eventAdded eventKind = iota
	eventRemoved
	eventChanged
)

type event struct {
	kind     eventKind
	messages []*Message
	message  *Message
	old, new Flags
}

func (f *Folder) dispatch(events []event) {
	if f.observer == nil {
		return
	}
	for _, ev := range events {
		switch ev.kind {
		case eventAdded:
			if len(ev.messages) > 0 {
				f.observer.MessagesAdded(f, ev.messages)
			}
		case eventRemoved:
			if len(ev.messages) > 0 {
				f.observer.MessagesRemoved(f, ev.messages)
			}
		case eventChanged:
			f.observer.MessageChanged(f, ev.message, ev.old, ev.new)
		}
	}
}
