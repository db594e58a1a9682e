//
// Copyright 2019-2020 Nestybox, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package fuseadapter

import (
	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/sirupsen/logrus"

	"github.com/tcmur/tcmur/dispatch"
	"github.com/tcmur/tcmur/tree"
)

// Server hosts the FUSE mount, grounded on the teacher's fuseServer
// (fuse/server.go): a mountpoint, a handle to the data structures the
// FS calls translate into, and the bazil.org/fuse plumbing to drive
// them. The filesystem loop is bazil.org/fuse's own Serve loop, which
// reads requests on one goroutine and serves each request on a
// goroutine of its own; this package spawns no further goroutines to
// process requests.
type Server struct {
	mountPoint string
	tree       *tree.Tree
	disp       *dispatch.Dispatcher
	conn       *fuse.Conn
}

// New builds a Server that will expose t through FUSE, dispatching I/O
// via disp.
func New(mountPoint string, t *tree.Tree, disp *dispatch.Dispatcher) *Server {
	return &Server{mountPoint: mountPoint, tree: t, disp: disp}
}

// Root implements fs.FS, handing bazil.org/fuse the wrapped tree root.
func (s *Server) Root() (fs.Node, error) {
	return newNode(s.tree.Root(), s.tree, s.disp), nil
}

// Mount opens the FUSE connection with allow-other, default permission
// checking, and a recognizable filesystem name and type tag. It
// requests no atomic-truncate-on-open option.
func (s *Server) Mount() error {
	conn, err := fuse.Mount(
		s.mountPoint,
		fuse.FSName("tcmur"),
		fuse.Subtype("tcmur"),
		fuse.AllowOther(),
		fuse.DefaultPermissions(),
	)
	if err != nil {
		return err
	}
	s.conn = conn
	return nil
}

// Serve blocks processing filesystem requests until the connection is
// closed or the filesystem is unmounted. cmd/tcmur runs it on the
// process's main goroutine.
func (s *Server) Serve() error {
	logrus.Infof("tcmur: serving FUSE at %s", s.mountPoint)
	return fs.Serve(s.conn, s)
}

// Unmount tears down the FUSE mount. It only detaches the mountpoint
// and closes the connection; it does not wait for in-flight tasks.
func (s *Server) Unmount() error {
	if s.conn == nil {
		return nil
	}
	if err := fuse.Unmount(s.mountPoint); err != nil {
		return err
	}
	return s.conn.Close()
}
