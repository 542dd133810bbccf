// ABOUTME: Avatar storage: users reference an Image document holding a base64 data URI
// ABOUTME: Clearing an avatar empties the Image payload but keeps the Image and the reference

package account

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/2389/blogsys/internal/docstore"
)

// MaxAvatarBytes caps the size of an uploaded avatar.
const MaxAvatarBytes = 2 << 20

// avatarTypes are the accepted upload formats.
var avatarTypes = []string{"image/png", "image/jpeg", "image/gif", "image/webp"}

// GetAvatar returns the Image with id, or nil for an empty id or a missing Image.
func (s *Service) GetAvatar(ctx context.Context, id string) (*Image, error) {
	if id == "" {
		return nil, nil
	}
	snap, err := s.images.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting avatar: %w", err)
	}
	if !snap.Exists() {
		return nil, nil
	}
	return &Image{ID: snap.ID, Data: snap.Data.String(fieldImageData)}, nil
}

// SaveAvatar stores, replaces or clears the avatar of the user in form field "id".
// An empty "avatar" file clears it.
func (s *Service) SaveAvatar(ctx context.Context, caller *Caller, form *Form) Outcome {
	id := strings.TrimSpace(form.Get("id"))
	if err := RequireSelfOrRole(caller, id, RoleAdmin); err != nil {
		return Failure(err)
	}
	if id == "" {
		return Failure(fmt.Errorf("%w: user id required", ErrInvalidInput))
	}

	data, err := EncodeAvatar(form.File("avatar"))
	if err != nil {
		return Failure(err)
	}

	userSnap, err := s.users.Get(ctx, id, fieldAvatarID)
	if err != nil {
		return Failure(fmt.Errorf("getting user: %w", err))
	}
	if !userSnap.Exists() {
		return Failure(fmt.Errorf("%w: user %s does not exist", ErrInvalidInput, id))
	}

	if err := s.storeAvatar(ctx, id, userSnap.Data.String(fieldAvatarID), data); err != nil {
		return Failure(err)
	}

	if data != "" {
		return Redirect(TargetSettingsSaved)
	}
	return Refresh(TargetSettings)
}

func (s *Service) storeAvatar(ctx context.Context, userID, avatarID, data string) error {
	if avatarID != "" {
		err := s.images.Update(ctx, avatarID, docstore.Document{fieldImageData: data})
		if err == nil {
			s.logger.Debug("avatar updated", "user_id", userID, "image_id", avatarID, "cleared", data == "")
			return nil
		}
		if !errors.Is(err, docstore.ErrNotFound) {
			return fmt.Errorf("updating avatar: %w", err)
		}
		// Dangling reference: fall through and link a fresh Image
	}

	if data == "" {
		return nil
	}

	imageID, err := s.images.Insert(ctx, docstore.Document{fieldImageData: data})
	if err != nil {
		return fmt.Errorf("inserting avatar: %w", err)
	}
	if err := s.users.Update(ctx, userID, docstore.Document{fieldAvatarID: imageID}); err != nil {
		return fmt.Errorf("linking avatar: %w", err)
	}

	s.logger.Info("avatar created", "user_id", userID, "image_id", imageID)
	return nil
}

// EncodeAvatar turns an uploaded file into a data URI. A nil or empty file encodes to "".
func EncodeAvatar(file *File) (string, error) {
	if file == nil || len(file.Data) == 0 {
		return "", nil
	}
	if len(file.Data) > MaxAvatarBytes {
		return "", fmt.Errorf("%w: avatar exceeds %d bytes", ErrInvalidInput, MaxAvatarBytes)
	}

	mtype := mimetype.Detect(file.Data)
	if !mimetype.EqualsAny(mtype.String(), avatarTypes...) {
		return "", fmt.Errorf("%w: unsupported avatar type %s", ErrInvalidInput, mtype.String())
	}
	return "data:" + mtype.String() + ";base64," + base64.StdEncoding.EncodeToString(file.Data), nil
}

// DecodeAvatar splits a stored data URI into its content type and bytes.
func DecodeAvatar(data string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(data, "data:")
	if !ok {
		return "", nil, fmt.Errorf("%w: not a data URI", ErrInvalidInput)
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: malformed data URI", ErrInvalidInput)
	}
	contentType, ok := strings.CutSuffix(header, ";base64")
	if !ok {
		return "", nil, fmt.Errorf("%w: data URI is not base64", ErrInvalidInput)
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: decoding avatar: %v", ErrInvalidInput, err)
	}
	return contentType, raw, nil
}
