// ABOUTME: Flat form-submission boundary used by actions
// ABOUTME: Scalar fields arrive as strings and uploads as in-memory files

package account

// File is an uploaded form file. A zero-size file is a valid submission.
type File struct {
	Name string
	Size int64
	Data []byte
}

// Form is a submitted HTML form.
type Form struct {
	Values map[string]string
	Files  map[string]*File
}

// NewForm builds a form from scalar values.
func NewForm(values map[string]string) *Form {
	if values == nil {
		values = map[string]string{}
	}
	return &Form{Values: values, Files: map[string]*File{}}
}

// Get returns the value of key, or "" when absent.
func (f *Form) Get(key string) string {
	if f == nil {
		return ""
	}
	return f.Values[key]
}

// Has reports whether key was submitted, even if empty.
func (f *Form) Has(key string) bool {
	if f == nil {
		return false
	}
	_, ok := f.Values[key]
	return ok
}

// File returns the uploaded file for key, or nil.
func (f *Form) File(key string) *File {
	if f == nil {
		return nil
	}
	return f.Files[key]
}

// SetFile attaches an uploaded file.
func (f *Form) SetFile(key string, file *File) {
	if f.Files == nil {
		f.Files = map[string]*File{}
	}
	f.Files[key] = file
}
