// Package profile drives the contact profile screen: it shows a contact's
// identity and lets the user add the contact or start a conversation.
package profile

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/quantumauth-io/quantum-go-utils/log"
	"github.com/skip2/go-qrcode"

	"github.com/toshi-app/toshi-client/internal/contacts"
	"github.com/toshi-app/toshi-client/internal/helpers"
	"github.com/toshi-app/toshi-client/internal/messaging"
	"github.com/toshi-app/toshi-client/internal/sound"
)

const (
	ScreenTitle = "Contact"

	AddContactTitle = "Add contact"
	AddedTitle      = "✓ Added"

	qrCodeSize = 256
)

// ContactStore is the local object store holding serialized contacts.
type ContactStore interface {
	ContainsObject(ctx context.Context, key, collection string) (bool, error)
	Insert(ctx context.Context, object []byte, key, collection string) error
}

// RecipientStore runs messaging bookkeeping in a read-write transaction.
type RecipientStore interface {
	ReadWrite(ctx context.Context, fn func(tx *messaging.Tx) error) error
}

// Navigator hands off to other screens.
type Navigator interface {
	DisplayMessage(address string)
	PresentQRCode(address string)
}

type Deps struct {
	Contacts   ContactStore
	Recipients RecipientStore
	Sounds     sound.Player
	Navigator  Navigator
}

type Button struct {
	Title  string `json:"title"`
	Added  bool   `json:"added"`
	Tinted bool   `json:"tinted"`
}

type View struct {
	Title     string `json:"title"`
	Address   string `json:"address"`
	Name      string `json:"name"`
	Username  string `json:"username"`
	About     string `json:"about"`
	Location  string `json:"location"`
	AvatarURL string `json:"avatar_url"`
	Button    Button `json:"button"`
}

type Screen struct {
	deps Deps

	mu      sync.Mutex
	contact contacts.Contact

	qrAddress string
	qrPNG     []byte
}

func NewScreen(contact contacts.Contact, deps Deps) (*Screen, error) {
	if deps.Contacts == nil || deps.Recipients == nil {
		return nil, errors.New("profile: contact and recipient stores are required")
	}
	contact = contact.Normalized()
	if err := contact.Validate(); err != nil {
		return nil, err
	}
	if deps.Sounds == nil {
		deps.Sounds = sound.LogPlayer{}
	}
	return &Screen{deps: deps, contact: contact}, nil
}

// Load replaces the displayed contact. The caller has already fetched it.
// Addresses are stored in checksummed form.
func (s *Screen) Load(contact contacts.Contact) error {
	contact = contact.Normalized()
	if err := contact.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.contact = contact
	s.mu.Unlock()
	return nil
}

func (s *Screen) Contact() contacts.Contact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contact
}

// Appear builds the view. Button state is re-read from the store every time.
func (s *Screen) Appear(ctx context.Context) (View, error) {
	c := s.Contact()

	v := View{
		Title:     ScreenTitle,
		Address:   c.Address,
		About:     c.About,
		Location:  c.Location,
		AvatarURL: c.AvatarURL,
	}
	if helpers.HasText(&c.DisplayName) {
		v.Name = c.DisplayName
		v.Username = "@" + c.Username
	} else {
		v.Name = "@" + c.Username
	}

	btn, err := s.AddButton(ctx)
	if err != nil {
		return View{}, err
	}
	v.Button = btn
	return v, nil
}

// AddButton derives the add-contact button from store membership.
func (s *Screen) AddButton(ctx context.Context) (Button, error) {
	c := s.Contact()
	added, err := s.deps.Contacts.ContainsObject(ctx, c.Address, contacts.CollectionKey)
	if err != nil {
		return Button{}, fmt.Errorf("profile: lookup contact %s: %w", c.Address, err)
	}
	if added {
		return Button{Title: AddedTitle, Added: true, Tinted: true}, nil
	}
	return Button{Title: AddContactTitle}, nil
}

// AddContact stores the contact and its messaging recipient. Adding an
// already stored contact does nothing.
func (s *Screen) AddContact(ctx context.Context) (Button, error) {
	c := s.Contact()

	added, err := s.deps.Contacts.ContainsObject(ctx, c.Address, contacts.CollectionKey)
	if err != nil {
		return Button{}, fmt.Errorf("profile: lookup contact %s: %w", c.Address, err)
	}
	if added {
		return s.AddButton(ctx)
	}

	err = s.deps.Recipients.ReadWrite(ctx, func(tx *messaging.Tx) error {
		_, err := tx.EnsureRecipient(c.Address)
		return err
	})
	if err != nil {
		return Button{}, fmt.Errorf("profile: save recipient: %w", err)
	}

	if err := s.insert(ctx, c); err != nil {
		return Button{}, err
	}

	s.deps.Sounds.PlaySound(sound.AddedContact)
	log.Info("contact added", "address", c.Address)

	return s.AddButton(ctx)
}

// MessageContact makes sure the recipient and its thread exist, stores the
// contact if it is new and opens the conversation. Unlike AddContact no
// confirmation sound is played.
func (s *Screen) MessageContact(ctx context.Context) error {
	c := s.Contact()

	registered, err := s.deps.Contacts.ContainsObject(ctx, c.Address, contacts.CollectionKey)
	if err != nil {
		return fmt.Errorf("profile: lookup contact %s: %w", c.Address, err)
	}

	err = s.deps.Recipients.ReadWrite(ctx, func(tx *messaging.Tx) error {
		if _, err := tx.EnsureRecipient(c.Address); err != nil {
			return err
		}
		_, err := tx.GetOrCreateThread(c.Address)
		return err
	})
	if err != nil {
		return fmt.Errorf("profile: prepare thread: %w", err)
	}

	if !registered {
		if err := s.insert(ctx, c); err != nil {
			return err
		}
	}

	if s.deps.Navigator != nil {
		s.deps.Navigator.DisplayMessage(c.Address)
	}
	return nil
}

func (s *Screen) insert(ctx context.Context, c contacts.Contact) error {
	data, err := c.JSONData()
	if err != nil {
		return fmt.Errorf("profile: encode contact: %w", err)
	}
	if err := s.deps.Contacts.Insert(ctx, data, c.Address, contacts.CollectionKey); err != nil {
		return fmt.Errorf("profile: insert contact %s: %w", c.Address, err)
	}
	return nil
}

// QRCode renders the contact address as a PNG. The image is cached until the
// address changes.
func (s *Screen) QRCode() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.qrPNG != nil && s.qrAddress == s.contact.Address {
		return s.qrPNG, nil
	}

	png, err := qrcode.Encode(s.contact.Address, qrcode.Medium, qrCodeSize)
	if err != nil {
		return nil, fmt.Errorf("profile: qr code: %w", err)
	}
	s.qrAddress = s.contact.Address
	s.qrPNG = png
	return png, nil
}

func (s *Screen) DisplayQRCode() {
	if s.deps.Navigator != nil {
		s.deps.Navigator.PresentQRCode(s.Contact().Address)
	}
}
