package mogilefs

import (
	"strconv"
	"unicode/utf8"

	"github.com/unkn0wn-root/mogilefs/internal/wire"
)

// Args is an ordered URL-encoded form body.
type Args = wire.Args

// Request is one tracker operation. Each request knows its op token, how to
// render its arguments and how to read the success body that answers it.
type Request interface {
	Op() string
	Args() Args
	ParseResponse(args Args) (Response, error)
}

// Response is the success body of an operation.
type Response interface {
	Args() Args
}

// Empty is the response of operations that return no fields.
type Empty struct{}

func (Empty) Args() Args { return nil }

// Line renders req as a wire request line, CRLF included.
func Line(req Request) []byte {
	return wire.RequestLine(req.Op(), req.Args())
}

type requestParser func(Args) (Request, error)

var parsers = map[string]requestParser{
	"noop":          func(Args) (Request, error) { return &Noop{}, nil },
	"create_domain": parseCreateDomain,
	"create_class":  parseCreateClass,
	"create_open":   parseCreateOpen,
	"create_close":  parseCreateClose,
	"get_paths":     parseGetPaths,
	"file_info":     parseFileInfo,
	"rename":        parseRename,
	"updateclass":   parseUpdateClass,
	"delete":        parseDelete,
	"list_keys":     parseListKeys,
}

// ParseRequest decodes one request line. A trailing CRLF is ignored.
func ParseRequest(line []byte) (Request, error) {
	op, body := wire.SplitOp(wire.TrimEOL(line))
	if len(op) == 0 {
		return nil, NewError(KindUnknownCommand, "")
	}
	if !utf8.Valid(op) {
		return nil, NewError(KindUTF8, "invalid utf-8 in command")
	}
	parse, ok := parsers[string(op)]
	if !ok {
		return nil, NewError(KindUnknownCommand, string(op))
	}
	return parse(wire.ParseArgs(body))
}

func requireDomain(a Args) (string, error) {
	d := a.Value("domain")
	if d == "" {
		return "", NewError(KindNoDomain, "")
	}
	return d, nil
}

func requireArg(a Args, name string, kind Kind) (string, error) {
	v := a.Value(name)
	if v == "" {
		return "", NewError(kind, "")
	}
	return v, nil
}

func optUint(a Args, name string) (uint64, error) {
	v, ok := a.Get(name)
	if !ok || v == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, WrapError(KindOther, "invalid "+name, err)
	}
	return n, nil
}

func optInt(a Args, name string) (int, error) {
	v, ok := a.Get(name)
	if !ok || v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, WrapError(KindOther, "invalid "+name, err)
	}
	return n, nil
}

func boolArg(a Args, name string) bool {
	switch a.Value(name) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

func itoa(n int) string { return strconv.Itoa(n) }

func i64toa(n int64) string { return strconv.FormatInt(n, 10) }

func u64toa(n uint64) string { return strconv.FormatUint(n, 10) }

// Noop checks that the tracker is alive.
type Noop struct{}

func (*Noop) Op() string { return "noop" }
func (*Noop) Args() Args { return nil }
func (*Noop) ParseResponse(Args) (Response, error) {
	return Empty{}, nil
}

// CreateDomain registers a new domain.
type CreateDomain struct {
	Domain string
}

func (*CreateDomain) Op() string { return "create_domain" }
func (r *CreateDomain) Args() Args {
	return Args{{Key: "domain", Value: r.Domain}}
}
func (*CreateDomain) ParseResponse(a Args) (Response, error) {
	d, ok := a.Get("domain")
	if !ok {
		return nil, NewError(KindBadResponse, "create_domain: missing domain")
	}
	return &CreateDomainResponse{Domain: d}, nil
}

func parseCreateDomain(a Args) (Request, error) {
	d, err := requireDomain(a)
	if err != nil {
		return nil, err
	}
	return &CreateDomain{Domain: d}, nil
}

// CreateDomainResponse echoes the created domain.
type CreateDomainResponse struct {
	Domain string
}

func (r *CreateDomainResponse) Args() Args {
	return Args{{Key: "domain", Value: r.Domain}}
}

// CreateClass registers a storage class. Backends without classes accept
// it as a no-op.
type CreateClass struct {
	Domain      string
	Class       string
	MinDevCount int
}

func (*CreateClass) Op() string { return "create_class" }
func (r *CreateClass) Args() Args {
	a := Args{{Key: "domain", Value: r.Domain}, {Key: "class", Value: r.Class}}
	if r.MinDevCount > 0 {
		a.Add("mindevcount", itoa(r.MinDevCount))
	}
	return a
}
func (*CreateClass) ParseResponse(a Args) (Response, error) {
	n, err := optInt(a, "mindevcount")
	if err != nil {
		return nil, WrapError(KindBadResponse, "create_class: mindevcount", err)
	}
	return &CreateClassResponse{Domain: a.Value("domain"), Class: a.Value("class"), MinDevCount: n}, nil
}

func parseCreateClass(a Args) (Request, error) {
	d, err := requireDomain(a)
	if err != nil {
		return nil, err
	}
	c, err := requireArg(a, "class", KindNoClass)
	if err != nil {
		return nil, err
	}
	n, err := optInt(a, "mindevcount")
	if err != nil {
		return nil, err
	}
	return &CreateClass{Domain: d, Class: c, MinDevCount: n}, nil
}

// CreateClassResponse echoes the created class.
type CreateClassResponse struct {
	Domain      string
	Class       string
	MinDevCount int
}

func (r *CreateClassResponse) Args() Args {
	a := Args{{Key: "domain", Value: r.Domain}, {Key: "class", Value: r.Class}}
	if r.MinDevCount > 0 {
		a.Add("mindevcount", itoa(r.MinDevCount))
	}
	return a
}

// CreateOpen reserves key and asks where its bytes should be written.
type CreateOpen struct {
	Domain    string
	Key       string
	Class     string
	MultiDest bool
	// Size is the expected length, nil when unknown.
	Size *int64
}

func (*CreateOpen) Op() string { return "create_open" }
func (r *CreateOpen) Args() Args {
	a := Args{{Key: "domain", Value: r.Domain}, {Key: "key", Value: r.Key}}
	if r.Class != "" {
		a.Add("class", r.Class)
	}
	if r.MultiDest {
		a.Add("multi_dest", "1")
	}
	if r.Size != nil {
		a.Add("size", i64toa(*r.Size))
	}
	return a
}
func (*CreateOpen) ParseResponse(a Args) (Response, error) {
	resp, err := parseCreateOpenResponse(a)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func parseCreateOpen(a Args) (Request, error) {
	d, err := requireDomain(a)
	if err != nil {
		return nil, err
	}
	k, err := requireArg(a, "key", KindNoKey)
	if err != nil {
		return nil, err
	}
	req := &CreateOpen{Domain: d, Key: k, Class: a.Value("class"), MultiDest: boolArg(a, "multi_dest")}
	if v, ok := a.Get("size"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, WrapError(KindOther, "invalid size", err)
		}
		req.Size = &n
	}
	return req, nil
}

// Destination is one place a client may PUT the bytes of a new file.
type Destination struct {
	Devid uint64
	URL   string
}

// CreateOpenResponse lists the destinations for a reserved file.
type CreateOpenResponse struct {
	Fid   uint64
	Paths []Destination
}

func (r *CreateOpenResponse) Args() Args {
	a := make(Args, 0, 2+2*len(r.Paths))
	a.Add("fid", u64toa(r.Fid))
	a.Add("dev_count", itoa(len(r.Paths)))
	for i, p := range r.Paths {
		n := itoa(i + 1)
		a.Add("devid_"+n, u64toa(p.Devid))
		a.Add("path_"+n, p.URL)
	}
	return a
}

func parseCreateOpenResponse(a Args) (*CreateOpenResponse, error) {
	fid, err := optUint(a, "fid")
	if err != nil || fid == 0 {
		return nil, NewError(KindBadResponse, "create_open: missing fid")
	}
	resp := &CreateOpenResponse{Fid: fid}

	// single destination form, sent by trackers when multi_dest is off
	if _, multi := a.Get("dev_count"); !multi {
		devid, err := optUint(a, "devid")
		if err != nil {
			return nil, WrapError(KindBadResponse, "create_open: devid", err)
		}
		if p := a.Value("path"); p != "" {
			resp.Paths = append(resp.Paths, Destination{Devid: devid, URL: p})
		}
		return resp, nil
	}

	count, err := optInt(a, "dev_count")
	if err != nil || count < 0 {
		return nil, NewError(KindBadResponse, "create_open: dev_count")
	}
	resp.Paths = make([]Destination, 0, count)
	for i := 1; i <= count; i++ {
		n := itoa(i)
		devid, err := optUint(a, "devid_"+n)
		if err != nil {
			return nil, WrapError(KindBadResponse, "create_open: devid_"+n, err)
		}
		p, ok := a.Get("path_" + n)
		if !ok {
			return nil, NewError(KindBadResponse, "create_open: missing path_"+n)
		}
		resp.Paths = append(resp.Paths, Destination{Devid: devid, URL: p})
	}
	return resp, nil
}

// CreateClose tells the tracker where the bytes of a file were written.
type CreateClose struct {
	Domain   string
	Key      string
	Fid      uint64
	Devid    uint64
	Path     string
	Checksum string
}

func (*CreateClose) Op() string { return "create_close" }
func (r *CreateClose) Args() Args {
	a := Args{
		{Key: "domain", Value: r.Domain},
		{Key: "key", Value: r.Key},
		{Key: "fid", Value: u64toa(r.Fid)},
		{Key: "devid", Value: u64toa(r.Devid)},
		{Key: "path", Value: r.Path},
	}
	if r.Checksum != "" {
		a.Add("checksum", r.Checksum)
	}
	return a
}
func (*CreateClose) ParseResponse(Args) (Response, error) {
	return Empty{}, nil
}

func parseCreateClose(a Args) (Request, error) {
	d, err := requireDomain(a)
	if err != nil {
		return nil, err
	}
	k, err := requireArg(a, "key", KindNoKey)
	if err != nil {
		return nil, err
	}
	fid, err := optUint(a, "fid")
	if err != nil {
		return nil, err
	}
	devid, err := optUint(a, "devid")
	if err != nil {
		return nil, err
	}
	return &CreateClose{
		Domain:   d,
		Key:      k,
		Fid:      fid,
		Devid:    devid,
		Path:     a.Value("path"),
		Checksum: a.Value("checksum"),
	}, nil
}

// GetPaths asks for the URLs a file can be read from.
type GetPaths struct {
	Domain   string
	Key      string
	NoVerify bool
	Zone     string
}

func (*GetPaths) Op() string { return "get_paths" }
func (r *GetPaths) Args() Args {
	a := Args{{Key: "domain", Value: r.Domain}, {Key: "key", Value: r.Key}}
	if r.NoVerify {
		a.Add("noverify", "1")
	}
	if r.Zone != "" {
		a.Add("zone", r.Zone)
	}
	return a
}
func (*GetPaths) ParseResponse(a Args) (Response, error) {
	count, err := optInt(a, "paths")
	if err != nil || count < 0 {
		return nil, NewError(KindBadResponse, "get_paths: paths")
	}
	resp := &GetPathsResponse{Paths: make([]string, 0, count)}
	for i := 1; i <= count; i++ {
		p, ok := a.Get("path" + itoa(i))
		if !ok {
			return nil, NewError(KindBadResponse, "get_paths: missing path"+itoa(i))
		}
		resp.Paths = append(resp.Paths, p)
	}
	return resp, nil
}

func parseGetPaths(a Args) (Request, error) {
	d, err := requireDomain(a)
	if err != nil {
		return nil, err
	}
	k, err := requireArg(a, "key", KindNoKey)
	if err != nil {
		return nil, err
	}
	return &GetPaths{Domain: d, Key: k, NoVerify: boolArg(a, "noverify"), Zone: a.Value("zone")}, nil
}

// GetPathsResponse lists readable URLs, best first.
type GetPathsResponse struct {
	Paths []string
}

func (r *GetPathsResponse) Args() Args {
	a := make(Args, 0, 1+len(r.Paths))
	a.Add("paths", itoa(len(r.Paths)))
	for i, p := range r.Paths {
		a.Add("path"+itoa(i+1), p)
	}
	return a
}

// FileInfo asks for the metadata of a stored file.
type FileInfo struct {
	Domain string
	Key    string
}

func (*FileInfo) Op() string { return "file_info" }
func (r *FileInfo) Args() Args {
	return Args{{Key: "domain", Value: r.Domain}, {Key: "key", Value: r.Key}}
}
func (*FileInfo) ParseResponse(a Args) (Response, error) {
	fid, err := optUint(a, "fid")
	if err != nil {
		return nil, WrapError(KindBadResponse, "file_info: fid", err)
	}
	length, err := strconv.ParseInt(a.Value("length"), 10, 64)
	if err != nil {
		return nil, WrapError(KindBadResponse, "file_info: length", err)
	}
	devcount, err := optInt(a, "devcount")
	if err != nil {
		return nil, WrapError(KindBadResponse, "file_info: devcount", err)
	}
	return &FileInfoResponse{
		Domain:   a.Value("domain"),
		Key:      a.Value("key"),
		Length:   length,
		Fid:      fid,
		DevCount: devcount,
		Class:    a.Value("class"),
	}, nil
}

func parseFileInfo(a Args) (Request, error) {
	d, err := requireDomain(a)
	if err != nil {
		return nil, err
	}
	k, err := requireArg(a, "key", KindNoKey)
	if err != nil {
		return nil, err
	}
	return &FileInfo{Domain: d, Key: k}, nil
}

// FileInfoResponse describes a materialised file.
type FileInfoResponse struct {
	Domain   string
	Key      string
	Length   int64
	Fid      uint64
	DevCount int
	Class    string
}

func (r *FileInfoResponse) Args() Args {
	return Args{
		{Key: "domain", Value: r.Domain},
		{Key: "key", Value: r.Key},
		{Key: "length", Value: i64toa(r.Length)},
		{Key: "fid", Value: u64toa(r.Fid)},
		{Key: "devcount", Value: itoa(r.DevCount)},
		{Key: "class", Value: r.Class},
	}
}

// Rename moves a file to a new key within its domain.
type Rename struct {
	Domain  string
	FromKey string
	ToKey   string
}

func (*Rename) Op() string { return "rename" }
func (r *Rename) Args() Args {
	return Args{
		{Key: "domain", Value: r.Domain},
		{Key: "from_key", Value: r.FromKey},
		{Key: "to_key", Value: r.ToKey},
	}
}
func (*Rename) ParseResponse(Args) (Response, error) {
	return Empty{}, nil
}

func parseRename(a Args) (Request, error) {
	d, err := requireDomain(a)
	if err != nil {
		return nil, err
	}
	from, err := requireArg(a, "from_key", KindNoKey)
	if err != nil {
		return nil, err
	}
	to, err := requireArg(a, "to_key", KindNoKey)
	if err != nil {
		return nil, err
	}
	return &Rename{Domain: d, FromKey: from, ToKey: to}, nil
}

// UpdateClass changes the storage class of a file.
type UpdateClass struct {
	Domain string
	Key    string
	Class  string
}

func (*UpdateClass) Op() string { return "updateclass" }
func (r *UpdateClass) Args() Args {
	return Args{
		{Key: "domain", Value: r.Domain},
		{Key: "key", Value: r.Key},
		{Key: "class", Value: r.Class},
	}
}
func (*UpdateClass) ParseResponse(Args) (Response, error) {
	return Empty{}, nil
}

func parseUpdateClass(a Args) (Request, error) {
	d, err := requireDomain(a)
	if err != nil {
		return nil, err
	}
	k, err := requireArg(a, "key", KindNoKey)
	if err != nil {
		return nil, err
	}
	return &UpdateClass{Domain: d, Key: k, Class: a.Value("class")}, nil
}

// Delete removes a file.
type Delete struct {
	Domain string
	Key    string
}

func (*Delete) Op() string { return "delete" }
func (r *Delete) Args() Args {
	return Args{{Key: "domain", Value: r.Domain}, {Key: "key", Value: r.Key}}
}
func (*Delete) ParseResponse(Args) (Response, error) {
	return Empty{}, nil
}

func parseDelete(a Args) (Request, error) {
	d, err := requireDomain(a)
	if err != nil {
		return nil, err
	}
	k, err := requireArg(a, "key", KindNoKey)
	if err != nil {
		return nil, err
	}
	return &Delete{Domain: d, Key: k}, nil
}

// ListKeys pages through the keys of a domain in ascending order.
type ListKeys struct {
	Domain string
	Prefix string
	After  string
	// Limit is the page size; 0 means ListLimit.
	Limit int
}

func (*ListKeys) Op() string { return "list_keys" }
func (r *ListKeys) Args() Args {
	a := Args{{Key: "domain", Value: r.Domain}}
	if r.Prefix != "" {
		a.Add("prefix", r.Prefix)
	}
	if r.After != "" {
		a.Add("after", r.After)
	}
	if r.Limit > 0 {
		a.Add("limit", itoa(r.Limit))
	}
	return a
}
func (*ListKeys) ParseResponse(a Args) (Response, error) {
	count, err := optInt(a, "key_count")
	if err != nil || count < 0 {
		return nil, NewError(KindBadResponse, "list_keys: key_count")
	}
	resp := &ListKeysResponse{Keys: make([]string, 0, count)}
	for i := 1; i <= count; i++ {
		k, ok := a.Get("key_" + itoa(i))
		if !ok {
			return nil, NewError(KindBadResponse, "list_keys: missing key_"+itoa(i))
		}
		resp.Keys = append(resp.Keys, k)
	}
	return resp, nil
}

// PageLimit is Limit clamped to (0, ListLimit].
func (r *ListKeys) PageLimit() int {
	if r.Limit <= 0 || r.Limit > ListLimit {
		return ListLimit
	}
	return r.Limit
}

func parseListKeys(a Args) (Request, error) {
	d, err := requireDomain(a)
	if err != nil {
		return nil, err
	}
	limit, err := optInt(a, "limit")
	if err != nil {
		return nil, err
	}
	return &ListKeys{Domain: d, Prefix: a.Value("prefix"), After: a.Value("after"), Limit: limit}, nil
}

// ListKeysResponse is one page of keys.
type ListKeysResponse struct {
	Keys []string
}

// NextAfter is the cursor for the following page, "" when the page is empty.
func (r *ListKeysResponse) NextAfter() string {
	if len(r.Keys) == 0 {
		return ""
	}
	return r.Keys[len(r.Keys)-1]
}

func (r *ListKeysResponse) Args() Args {
	a := make(Args, 0, 2+len(r.Keys))
	a.Add("key_count", itoa(len(r.Keys)))
	for i, k := range r.Keys {
		a.Add("key_"+itoa(i+1), k)
	}
	if next := r.NextAfter(); next != "" {
		a.Add("next_after", next)
	}
	return a
}
