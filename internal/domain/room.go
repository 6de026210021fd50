package domain

// RoomName identifies a room. Rooms are purely derived sets of sessions:
// a room exists exactly while at least one session is joined to it.
type RoomName string
